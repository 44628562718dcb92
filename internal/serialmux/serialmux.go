// Serialmux provides a line-oriented SCPI link over a serial port. Commands
// and queries from any number of callers are serialised onto the single
// port, and every line sent or received is fanned out to subscribers for
// live inspection.
package serialmux

import (
	"bufio"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/sourcemeter/internal/monitoring"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	ErrClosed      = errors.New("serial link closed")
)

var logf = monitoring.Component("serial")

// Traffic prefixes used for lines published to subscribers.
const (
	TxPrefix = "> "
	RxPrefix = "< "
)

const subscriberBuffer = 64

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// SendCommand writes one command line. No reply is read.
	SendCommand(string) error
	// Query writes one command line and returns the next reply line with
	// its terminator stripped. There is no timeout; a silent device blocks
	// the caller until the port is closed.
	Query(string) (string, error)
	// Subscribe creates a channel receiving every transmitted (TxPrefix)
	// and received (RxPrefix) line. The ID is used to unsubscribe.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// SerialMux serialises SCPI traffic onto a single serial port.
type SerialMux[T SerialPorter] struct {
	port   T
	reader *bufio.Reader

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// NewSerialMux creates a SerialMux over port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		reader:      bufio.NewReader(port),
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *SerialMux[T]) publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// slow subscriber; drop rather than stall instrument I/O
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// write must be called with commandMu held.
func (s *SerialMux[T]) write(command string) error {
	if s.isClosing() {
		return ErrClosed
	}
	command = strings.TrimRight(command, "\r\n")
	line := command + "\n"
	n, err := s.port.Write([]byte(line))
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	s.publish(TxPrefix + command)
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	return s.write(command)
}

// Query sends a command and reads one reply line.
func (s *SerialMux[T]) Query(command string) (string, error) {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	if err := s.write(command); err != nil {
		return "", err
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if line != "" {
			logf("discarding partial reply %q to %q", line, command)
		}
		if s.isClosing() {
			return "", ErrClosed
		}
		return "", fmt.Errorf("read reply to %q: %w", command, err)
	}
	reply := strings.TrimRight(line, "\r\n")
	s.publish(RxPrefix + reply)
	return reply, nil
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

var consoleTemplate = template.Must(template.New("scpi").Parse(`<!doctype html>
<html><head><title>SCPI console</title></head>
<body>
<form id="cmd"><input name="command" size="40" autofocus> <button>Send</button></form>
<pre id="log" data-tail="{{.Tail}}" data-api="{{.API}}"></pre>
<script>
const log = document.getElementById("log");
const es = new EventSource(log.dataset.tail);
es.onmessage = (e) => { log.textContent += e.data + "\n"; };
document.getElementById("cmd").onsubmit = async (e) => {
  e.preventDefault();
  const body = new URLSearchParams(new FormData(e.target));
  const resp = await fetch(log.dataset.api, {method: "POST", body});
  log.textContent += "# " + await resp.text() + "\n";
};
</script>
</body></html>
`))

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Console page driving the two API endpoints below.
	debug.Handle("scpi", "send SCPI commands to the instrument", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := consoleTemplate.Execute(w, map[string]string{
			"Tail": "/debug/scpi-tail",
			"API":  "/debug/scpi-api",
		}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	}))

	// Commands ending in '?' are queries and return the reply line.
	debug.HandleSilent("scpi-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(command, "?") {
			reply, err := s.Query(command)
			if err != nil {
				http.Error(w, "Query failed: "+err.Error(), http.StatusBadGateway)
				return
			}
			io.WriteString(w, reply)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	}))

	// Server-Sent Events stream of SCPI traffic.
	debug.HandleSilent("scpi-tail", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
}
