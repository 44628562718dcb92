package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s (%s): %w", path, opts, err)
	}
	logf("opened %s at %s", path, opts)

	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial device paths visible to the OS.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
