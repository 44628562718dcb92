package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/serialmux"
)

// panelFlags mirrors config.PanelConfig on the command line. Only flags the
// user actually set override the config file.
type panelFlags struct {
	port     string
	baud     int
	simulate bool
	load     float64

	mode       string
	start      string
	stop       string
	compliance string
	points     int
	hysteresis bool
	shape      string
	interval   time.Duration

	listen    string
	exportDir string
}

func (f *panelFlags) registerInstrument(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.port, "port", "p", "", "Serial device of the SourceMeter, e.g. /dev/ttyUSB0")
	fs.IntVar(&f.baud, "baud", serialmux.DefaultBaudRate, "Serial baud rate")
	fs.BoolVar(&f.simulate, "simulate", false, "Use the built-in simulated SourceMeter")
	fs.Float64Var(&f.load, "load", config.DefaultSimulatedLoad, "Resistance in ohms of the simulated load")
}

func (f *panelFlags) registerSweep(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.mode, "mode", "m", "voltage", "Source mode: voltage or current")
	fs.StringVar(&f.start, "start", "", "First bias value, unit prefixes allowed (e.g. -1, 500m)")
	fs.StringVar(&f.stop, "stop", "", "Last bias value")
	fs.StringVar(&f.compliance, "compliance", "", "Compliance limit on the measured quantity")
	fs.IntVarP(&f.points, "points", "n", 0, "Number of setpoints on the forward leg")
	fs.BoolVar(&f.hysteresis, "hysteresis", false, "Sweep back to the start after reaching the stop value")
	fs.StringVar(&f.shape, "shape", "", "Sweep shape: linear, reverse (same as --hysteresis) or zero_centered")
	fs.DurationVarP(&f.interval, "interval", "i", 0, "Delay between setting the bias and reading")
}

func (f *panelFlags) registerServer(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.listen, "listen", "l", config.DefaultListen, "HTTP listen address")
	fs.StringVar(&f.exportDir, "export-dir", config.DefaultExportDir, "Directory saved traces are written to")
}

func (f *panelFlags) apply(cmd *cobra.Command, cfg *config.PanelConfig) {
	fs := cmd.Flags()
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}
	if changed("port") {
		cfg.Port = &f.port
	}
	if changed("baud") {
		opts := serialmux.PortOptions{}
		if cfg.Serial != nil {
			opts = *cfg.Serial
		}
		opts.BaudRate = f.baud
		cfg.Serial = &opts
	}
	if changed("simulate") {
		cfg.Simulate = &f.simulate
	}
	if changed("load") {
		cfg.SimulatedLoad = &f.load
	}
	if changed("mode") {
		cfg.Mode = &f.mode
	}
	if changed("start") {
		cfg.Start = &f.start
	}
	if changed("stop") {
		cfg.Stop = &f.stop
	}
	if changed("compliance") {
		cfg.Compliance = &f.compliance
	}
	if changed("points") {
		cfg.Points = &f.points
	}
	if changed("hysteresis") {
		cfg.Hysteresis = &f.hysteresis
	}
	if changed("shape") {
		cfg.Shape = &f.shape
	}
	if changed("interval") {
		s := f.interval.String()
		cfg.Interval = &s
	}
	if changed("listen") {
		cfg.Listen = &f.listen
	}
	if changed("export-dir") {
		cfg.ExportDir = &f.exportDir
	}
}
