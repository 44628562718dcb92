// Package config loads the panel configuration: instrument link, default
// sweep parameters and the HTTP surface.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/sourcemeter/internal/fsutil"
	"github.com/banshee-data/sourcemeter/internal/serialmux"
	"github.com/banshee-data/sourcemeter/internal/sweep"
	"github.com/banshee-data/sourcemeter/internal/units"
)

// Panel limits on the sweep form.
const (
	MaxPoints   = 256
	MaxInterval = 60 * time.Second
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Default server settings.
const (
	DefaultListen        = "localhost:8024"
	DefaultExportDir     = "."
	DefaultSimulatedLoad = 1000.0
)

// PanelConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything left out, so partial files are safe.
// Bias and compliance values are unit-scaled strings such as "100m".
type PanelConfig struct {
	// Instrument link
	Port          *string                `json:"port,omitempty" yaml:"port,omitempty"`
	Serial        *serialmux.PortOptions `json:"serial,omitempty" yaml:"serial,omitempty"`
	Simulate      *bool                  `json:"simulate,omitempty" yaml:"simulate,omitempty"`
	SimulatedLoad *float64               `json:"simulated_load_ohms,omitempty" yaml:"simulated_load_ohms,omitempty"`

	// Sweep
	Mode       *string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Start      *string `json:"start,omitempty" yaml:"start,omitempty"`
	Stop       *string `json:"stop,omitempty" yaml:"stop,omitempty"`
	Compliance *string `json:"compliance,omitempty" yaml:"compliance,omitempty"`
	Points     *int    `json:"points,omitempty" yaml:"points,omitempty"`
	Hysteresis *bool   `json:"hysteresis,omitempty" yaml:"hysteresis,omitempty"`
	Shape      *string `json:"shape,omitempty" yaml:"shape,omitempty"`
	Interval   *string `json:"interval,omitempty" yaml:"interval,omitempty"` // duration string like "100ms"

	// Server
	Listen    *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	ExportDir *string `json:"export_dir,omitempty" yaml:"export_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int { return &v }

// Empty returns a PanelConfig with all fields nil.
func Empty() *PanelConfig {
	return &PanelConfig{}
}

// Defaults returns a fully populated voltage-mode configuration.
func Defaults() *PanelConfig {
	d := SweepDefaultsFor(sweep.ModeVoltage)
	return &PanelConfig{
		Port:          ptrString(""),
		Serial:        &serialmux.PortOptions{},
		Simulate:      ptrBool(false),
		SimulatedLoad: ptrFloat64(DefaultSimulatedLoad),
		Mode:          ptrString(sweep.ModeVoltage.String()),
		Start:         ptrString(d.Start),
		Stop:          ptrString(d.Stop),
		Compliance:    ptrString(d.Compliance),
		Points:        ptrInt(d.Points),
		Hysteresis:    ptrBool(false),
		Shape:         ptrString(""),
		Interval:      ptrString(d.Interval.String()),
		Listen:        ptrString(DefaultListen),
		ExportDir:     ptrString(DefaultExportDir),
	}
}

// SweepDefaults are the per-mode form defaults.
type SweepDefaults struct {
	Start      string
	Stop       string
	Compliance string
	Points     int
	Interval   time.Duration
}

// SweepDefaultsFor returns the defaults for mode. Voltage sweeps default to
// -1 V to 1 V under 100 mA compliance; current sweeps to 0 to 100 mA under
// 1 V compliance.
func SweepDefaultsFor(mode sweep.Mode) SweepDefaults {
	if mode == sweep.ModeCurrent {
		return SweepDefaults{Start: "0", Stop: "100m", Compliance: "1", Points: 11, Interval: 100 * time.Millisecond}
	}
	return SweepDefaults{Start: "-1", Stop: "1", Compliance: "100m", Points: 11, Interval: 100 * time.Millisecond}
}

// Load reads a .json, .yaml or .yml config file from disk.
func Load(path string) (*PanelConfig, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS reads a config file through fsys. Fields omitted from the file
// keep their defaults.
func LoadFS(fsys fsutil.FileSystem, path string) (*PanelConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every set field, including that the sweep it describes
// is within the instrument limits.
func (c *PanelConfig) Validate() error {
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.SimulatedLoad != nil && *c.SimulatedLoad <= 0 {
		return fmt.Errorf("simulated_load_ohms must be positive, got %g", *c.SimulatedLoad)
	}
	if c.Points != nil && (*c.Points < 1 || *c.Points > MaxPoints) {
		return fmt.Errorf("points must be between 1 and %d, got %d", MaxPoints, *c.Points)
	}
	if c.Interval != nil && *c.Interval != "" {
		d, err := time.ParseDuration(*c.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval '%s': %w", *c.Interval, err)
		}
		if d < 0 || d > MaxInterval {
			return fmt.Errorf("interval must be between 0 and %s, got %s", MaxInterval, d)
		}
	}
	if _, err := c.SweepConfig(); err != nil {
		return err
	}
	return nil
}

// GetPort returns the serial device path, empty when unset.
func (c *PanelConfig) GetPort() string {
	if c.Port == nil {
		return ""
	}
	return *c.Port
}

// GetSerial returns the serial options with defaults applied.
func (c *PanelConfig) GetSerial() serialmux.PortOptions {
	if c.Serial == nil {
		opts, _ := serialmux.PortOptions{}.Normalize()
		return opts
	}
	opts, err := c.Serial.Normalize()
	if err != nil {
		opts, _ = serialmux.PortOptions{}.Normalize()
	}
	return opts
}

// GetSimulate returns the simulate value or the default.
func (c *PanelConfig) GetSimulate() bool {
	if c.Simulate == nil {
		return false // default: real instrument
	}
	return *c.Simulate
}

// GetSimulatedLoad returns the simulated load in ohms or the default.
func (c *PanelConfig) GetSimulatedLoad() float64 {
	if c.SimulatedLoad == nil {
		return DefaultSimulatedLoad
	}
	return *c.SimulatedLoad
}

// GetMode returns the sweep mode, falling back to voltage on a bad value.
func (c *PanelConfig) GetMode() sweep.Mode {
	if c.Mode == nil {
		return sweep.ModeVoltage
	}
	m, err := sweep.ParseMode(*c.Mode)
	if err != nil {
		return sweep.ModeVoltage
	}
	return m
}

// GetPoints returns the points value or the mode default.
func (c *PanelConfig) GetPoints() int {
	if c.Points == nil {
		return SweepDefaultsFor(c.GetMode()).Points
	}
	return *c.Points
}

// GetHysteresis returns the hysteresis value or the default.
func (c *PanelConfig) GetHysteresis() bool {
	if c.Hysteresis == nil {
		return false
	}
	return *c.Hysteresis
}

// GetInterval parses and returns the Interval as a time.Duration.
func (c *PanelConfig) GetInterval() time.Duration {
	def := SweepDefaultsFor(c.GetMode()).Interval
	if c.Interval == nil || *c.Interval == "" {
		return def
	}
	d, err := time.ParseDuration(*c.Interval)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetListen returns the HTTP listen address or the default.
func (c *PanelConfig) GetListen() string {
	if c.Listen == nil || *c.Listen == "" {
		return DefaultListen
	}
	return *c.Listen
}

// GetExportDir returns the export directory or the default.
func (c *PanelConfig) GetExportDir() string {
	if c.ExportDir == nil || *c.ExportDir == "" {
		return DefaultExportDir
	}
	return *c.ExportDir
}

// SweepConfig converts the sweep fields into a validated sweep.Config.
// Unset fields take the defaults for the configured mode.
func (c *PanelConfig) SweepConfig() (sweep.Config, error) {
	mode := sweep.ModeVoltage
	if c.Mode != nil && *c.Mode != "" {
		m, err := sweep.ParseMode(*c.Mode)
		if err != nil {
			return sweep.Config{}, err
		}
		mode = m
	}
	d := SweepDefaultsFor(mode)

	scaled := func(name string, field *string, def string) (float64, error) {
		s := def
		if field != nil && *field != "" {
			s = *field
		}
		v, err := units.Parse(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", sweep.ErrInvalidConfig, name, err)
		}
		return v, nil
	}
	start, err := scaled("start", c.Start, d.Start)
	if err != nil {
		return sweep.Config{}, err
	}
	stop, err := scaled("stop", c.Stop, d.Stop)
	if err != nil {
		return sweep.Config{}, err
	}
	compliance, err := scaled("compliance", c.Compliance, d.Compliance)
	if err != nil {
		return sweep.Config{}, err
	}

	shape := sweep.Shape("")
	if c.Shape != nil && *c.Shape != "" {
		s, err := sweep.ParseShape(*c.Shape)
		if err != nil {
			return sweep.Config{}, err
		}
		shape = s
	}

	cfg := sweep.Config{
		Mode:       mode,
		Start:      start,
		Stop:       stop,
		Points:     c.GetPoints(),
		Hysteresis: c.GetHysteresis(),
		Shape:      shape,
		Compliance: compliance,
		Interval:   c.GetInterval(),
	}
	if err := cfg.Validate(); err != nil {
		return sweep.Config{}, err
	}
	return cfg, nil
}
