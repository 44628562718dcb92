// Package keithley drives a Keithley 2400 SourceMeter over a line-oriented
// SCPI link and provides a simulated instrument for development.
package keithley

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/sourcemeter/internal/sweep"
)

// Link is the SCPI transport. serialmux.SerialMux satisfies it.
type Link interface {
	SendCommand(string) error
	Query(string) (string, error)
}

// K2400 implements sweep.Instrument for a Keithley 2400.
type K2400 struct {
	link Link

	mu   sync.Mutex
	mode sweep.Mode
}

var _ sweep.Instrument = (*K2400)(nil)

// New returns a driver over link. The instrument is assumed to be sourcing
// voltage until ConfigureSource says otherwise.
func New(link Link) *K2400 {
	return &K2400{link: link, mode: sweep.ModeVoltage}
}

func (k *K2400) send(commands ...string) error {
	for _, c := range commands {
		if err := k.link.SendCommand(c); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
	}
	return nil
}

// Reset restores factory defaults and selects a "V,I" reading format.
func (k *K2400) Reset() error {
	return k.send("*RST", ":FORM:ELEM VOLT,CURR")
}

// Identify returns the *IDN? string.
func (k *K2400) Identify() (string, error) {
	return k.link.Query("*IDN?")
}

func scpiFunc(m sweep.Mode) (source, sense string) {
	if m == sweep.ModeCurrent {
		return "CURR", "VOLT"
	}
	return "VOLT", "CURR"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ConfigureSource selects the sourced function and senses the other one.
func (k *K2400) ConfigureSource(mode sweep.Mode) error {
	source, sense := scpiFunc(mode)
	if err := k.send(
		":SOUR:FUNC "+source,
		":SOUR:"+source+":MODE FIXED",
		fmt.Sprintf(":SENS:FUNC %q", sense),
	); err != nil {
		return err
	}
	k.mu.Lock()
	k.mode = mode
	k.mu.Unlock()
	return nil
}

// SetCompliance limits the sensed quantity: current when sourcing voltage,
// voltage when sourcing current.
func (k *K2400) SetCompliance(mode sweep.Mode, value float64) error {
	_, sense := scpiFunc(mode)
	return k.send(":SENS:" + sense + ":PROT " + num(value))
}

// SetOutputEnabled switches the output relay.
func (k *K2400) SetOutputEnabled(on bool) error {
	if on {
		return k.send(":OUTP ON")
	}
	return k.send(":OUTP OFF")
}

// SetBias sets the source level for the configured mode.
func (k *K2400) SetBias(value float64) error {
	k.mu.Lock()
	source, _ := scpiFunc(k.mode)
	k.mu.Unlock()
	return k.send(":SOUR:" + source + ":LEV " + num(value))
}

// Measure triggers one reading and returns voltage and current.
func (k *K2400) Measure() (float64, float64, error) {
	reply, err := k.link.Query(":READ?")
	if err != nil {
		return 0, 0, fmt.Errorf(":READ?: %w", err)
	}
	return ParseReading(reply)
}

// ParseReading parses a "<V>,<I>[,...]" reply. Extra fields are ignored.
func ParseReading(reply string) (voltage, current float64, err error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("malformed reading %q: want at least 2 fields", reply)
	}
	voltage, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed voltage in %q: %w", reply, err)
	}
	current, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed current in %q: %w", reply, err)
	}
	return voltage, current, nil
}
