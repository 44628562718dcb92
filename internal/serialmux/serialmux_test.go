package serialmux

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

func echoIDN(line string) string {
	if line == "*IDN?" {
		return "KEITHLEY INSTRUMENTS INC.,MODEL 2400,1234567,C30"
	}
	if strings.HasSuffix(line, "?") {
		return "0"
	}
	return ""
}

func TestSerialMux_SendCommandAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand(":OUTP ON"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if err := mux.SendCommand("*RST\n"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}
	if got := string(port.GetWrittenData()); got != ":OUTP ON\n*RST\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSerialMux_Query(t *testing.T) {
	port := NewTestableSerialPort()
	port.Responder = echoIDN
	mux := NewSerialMux(port)

	reply, err := mux.Query("*IDN?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !strings.HasPrefix(reply, "KEITHLEY") {
		t.Errorf("Query() = %q", reply)
	}
}

func TestSerialMux_QueryStripsCRLF(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("+1.000000E+00,+1.000000E-03\r\n"))
	mux := NewSerialMux(port)

	reply, err := mux.Query(":READ?")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if reply != "+1.000000E+00,+1.000000E-03" {
		t.Errorf("Query() = %q", reply)
	}
}

func TestSerialMux_QueryNoReply(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, err := mux.Query(":READ?")
	if !errors.Is(err, io.EOF) {
		t.Errorf("Query() error = %v, want io.EOF", err)
	}
}

func TestSerialMux_WriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = io.ErrClosedPipe
	mux := NewSerialMux(port)

	if err := mux.SendCommand("*RST"); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("SendCommand() error = %v", err)
	}
}

func TestSerialMux_QueriesAreSerialised(t *testing.T) {
	port := NewTestableSerialPort()
	port.Responder = func(line string) string { return "reply " + line }
	port.WriteLatency = time.Millisecond
	mux := NewSerialMux(port)

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := ":Q" + strings.Repeat("X", i) + "?"
			reply, err := mux.Query(cmd)
			if err != nil || reply != "reply "+cmd {
				errs <- cmd + " -> " + reply
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("mismatched reply: %s", e)
	}
}

func TestSerialMux_SubscribeSeesTraffic(t *testing.T) {
	port := NewTestableSerialPort()
	port.Responder = echoIDN
	mux := NewSerialMux(port)

	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	mux.SendCommand("*RST")
	mux.Query("*IDN?")

	want := []string{"> *RST", "> *IDN?", "< KEITHLEY INSTRUMENTS INC.,MODEL 2400,1234567,C30"}
	for _, w := range want {
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("traffic = %q, want %q", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestSerialMux_CloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
	if err := mux.SendCommand("*RST"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendCommand after Close = %v, want ErrClosed", err)
	}
}

func TestSerialMux_CloseUnblocksQuery(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	errCh := make(chan error, 1)
	go func() {
		_, err := mux.Query(":READ?")
		errCh <- err
	}()

	// Wait for the query to be written before closing.
	deadline := time.Now().Add(time.Second)
	for len(port.GetWrittenData()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	mux.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Query() error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Query did not return after Close")
	}
}

func TestTestableSerialPort_WrittenLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.Write([]byte("a\nb\n"))
	port.Write([]byte("c\n"))
	got := port.WrittenLines()
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("WrittenLines() = %v", got)
	}

	port.Reset()
	if port.WrittenLines() != nil {
		t.Error("Reset should clear written data")
	}
}
