package main

import (
	"errors"
	"fmt"

	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/keithley"
	"github.com/banshee-data/sourcemeter/internal/serialmux"
)

var errNoInstrument = errors.New("no instrument: set --port or --simulate")

// openInstrument opens the configured link and resets the SourceMeter to a
// known state. With neither a port nor --simulate it returns errNoInstrument
// and a disabled link.
func openInstrument(cfg *config.PanelConfig) (serialmux.SerialMuxInterface, *keithley.K2400, error) {
	var link serialmux.SerialMuxInterface
	switch {
	case cfg.GetSimulate():
		mux, _ := keithley.NewSimulatedLink(cfg.GetSimulatedLoad())
		logf("using simulated SourceMeter with a %g ohm load", cfg.GetSimulatedLoad())
		link = mux
	case cfg.GetPort() != "":
		mux, err := serialmux.NewRealSerialMux(cfg.GetPort(), cfg.GetSerial())
		if err != nil {
			return nil, nil, err
		}
		link = mux
	default:
		return serialmux.NewDisabledSerialMux(), nil, errNoInstrument
	}

	inst := keithley.New(link)
	if err := inst.Reset(); err != nil {
		link.Close()
		return nil, nil, fmt.Errorf("reset instrument: %w", err)
	}
	idn, err := inst.Identify()
	if err != nil {
		link.Close()
		return nil, nil, fmt.Errorf("identify instrument: %w", err)
	}
	logf("connected to %s", idn)
	return link, inst, nil
}
