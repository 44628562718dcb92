package keithley

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/sourcemeter/internal/serialmux"
)

// SimulatorIDN is the identification string reported by the simulator.
const SimulatorIDN = "KEITHLEY INSTRUMENTS INC.,MODEL 2400,SIM0001,C32 Oct  4 2010 14:20:11/A02  /S/K"

// Simulator is a serial port that speaks the SCPI subset used by K2400 and
// models a fixed resistor across the output terminals. The sensed quantity
// is clamped to the programmed compliance.
//
// Reads block until a reply is queued or the port is closed.
type Simulator struct {
	// ReadDelay is slept before each :READ? reply, standing in for the
	// instrument's integration time.
	ReadDelay time.Duration

	mu   sync.Mutex
	cond *sync.Cond

	resistance  float64
	sourceCurr  bool
	level       float64
	compCurrent float64
	compVoltage float64
	output      bool

	partial []byte
	replies bytes.Buffer
	errors  []string
	closed  bool
}

// NewSimulator returns a simulator with the given load in ohms, in the
// instrument's *RST state.
func NewSimulator(resistance float64) *Simulator {
	s := &Simulator{resistance: resistance}
	s.cond = sync.NewCond(&s.mu)
	s.reset()
	return s
}

// NewSimulatedLink wraps a new simulator in a SerialMux.
func NewSimulatedLink(resistance float64) (*serialmux.SerialMux[*Simulator], *Simulator) {
	sim := NewSimulator(resistance)
	return serialmux.NewSerialMux(sim), sim
}

// reset must be called with mu held.
func (s *Simulator) reset() {
	s.sourceCurr = false
	s.level = 0
	s.compCurrent = 105e-6
	s.compVoltage = 21
	s.output = false
}

// Output reports whether the output relay is on.
func (s *Simulator) Output() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// Level returns the programmed source level.
func (s *Simulator) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.replies.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.replies.Len() == 0 {
		return 0, io.EOF
	}
	return s.replies.Read(p)
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.partial = append(s.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSpace(string(s.partial[:i])))
		s.partial = s.partial[i+1:]
	}
	s.mu.Unlock()

	for _, line := range lines {
		if line != "" {
			s.handle(line)
		}
	}
	return len(p), nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	return nil
}

func (s *Simulator) reply(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(&s.replies, format+"\n", args...)
	s.cond.Broadcast()
}

func (s *Simulator) fail(code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, fmt.Sprintf("%d,%q", code, msg))
}

func (s *Simulator) handle(line string) {
	header, arg, _ := strings.Cut(line, " ")
	header = strings.ToUpper(header)
	arg = strings.Trim(strings.TrimSpace(arg), `"`)

	switch header {
	case "*IDN?":
		s.reply("%s", SimulatorIDN)
		return
	case ":SYST:ERR?":
		s.mu.Lock()
		next := `0,"No error"`
		if len(s.errors) > 0 {
			next, s.errors = s.errors[0], s.errors[1:]
		}
		s.mu.Unlock()
		s.reply("%s", next)
		return
	case ":READ?":
		if s.ReadDelay > 0 {
			time.Sleep(s.ReadDelay)
		}
		v, i := s.reading()
		s.reply("%+.6E,%+.6E", v, i)
		return
	}

	if strings.HasSuffix(header, "?") {
		// Answer unknown queries so a caller never waits forever.
		s.fail(-113, "Undefined header")
		s.reply(`-113,"Undefined header"`)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch header {
	case "*RST":
		s.reset()
	case ":FORM:ELEM", ":SOUR:VOLT:MODE", ":SOUR:CURR:MODE", ":SENS:FUNC":
	case ":SOUR:FUNC":
		switch strings.ToUpper(arg) {
		case "VOLT":
			s.sourceCurr = false
		case "CURR":
			s.sourceCurr = true
		default:
			s.errors = append(s.errors, `-224,"Illegal parameter value"`)
		}
	case ":OUTP":
		switch strings.ToUpper(arg) {
		case "ON", "1":
			s.output = true
		case "OFF", "0":
			s.output = false
		default:
			s.errors = append(s.errors, `-224,"Illegal parameter value"`)
		}
	case ":SOUR:VOLT:LEV", ":SOUR:CURR:LEV", ":SENS:CURR:PROT", ":SENS:VOLT:PROT":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			s.errors = append(s.errors, `-104,"Data type error"`)
			return
		}
		switch header {
		case ":SOUR:VOLT:LEV", ":SOUR:CURR:LEV":
			s.level = v
		case ":SENS:CURR:PROT":
			s.compCurrent = math.Abs(v)
		case ":SENS:VOLT:PROT":
			s.compVoltage = math.Abs(v)
		}
	default:
		s.errors = append(s.errors, `-113,"Undefined header"`)
	}
}

// reading computes the terminal voltage and current for the current state.
// With the output off both read as zero.
func (s *Simulator) reading() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.output {
		return 0, 0
	}
	if s.sourceCurr {
		v := clamp(s.level*s.resistance, s.compVoltage)
		return v, v / s.resistance
	}
	i := clamp(s.level/s.resistance, s.compCurrent)
	return i * s.resistance, i
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
