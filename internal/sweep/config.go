package sweep

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/sourcemeter/internal/units"
)

// Mode selects the sourced quantity.
type Mode int

const (
	ModeVoltage Mode = iota
	ModeCurrent
)

func (m Mode) String() string {
	switch m {
	case ModeVoltage:
		return "voltage"
	case ModeCurrent:
		return "current"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "voltage"/"current" and the short forms "v"/"i"/"a".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "voltage", "volt", "v":
		return ModeVoltage, nil
	case "current", "curr", "i", "a":
		return ModeCurrent, nil
	}
	return 0, invalidf("unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeVoltage && m != ModeCurrent {
		return nil, invalidf("unknown mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Limits returns the instrument limits that apply when sourcing in m.
func (m Mode) Limits() units.Limits {
	if m == ModeCurrent {
		return units.CurrentSource
	}
	return units.VoltageSource
}

// Shape selects how the forward plan is extended.
type Shape string

const (
	ShapeLinear       Shape = "linear"
	ShapeReverse      Shape = "reverse"
	ShapeZeroCentered Shape = "zero_centered"
)

// ParseShape accepts the Shape constants plus "none" and "hysteresis".
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", string(ShapeLinear):
		return ShapeLinear, nil
	case string(ShapeReverse), "hysteresis":
		return ShapeReverse, nil
	case string(ShapeZeroCentered), "zero-centered":
		return ShapeZeroCentered, nil
	}
	return "", invalidf("unknown shape %q", s)
}

// Config describes one sweep. Start and Stop are in the unit implied by
// Mode; Compliance is in the other unit.
type Config struct {
	Mode       Mode          `json:"mode"`
	Start      float64       `json:"start"`
	Stop       float64       `json:"stop"`
	Points     int           `json:"points"`
	Hysteresis bool          `json:"hysteresis"`
	Shape      Shape         `json:"shape,omitempty"`
	Compliance float64       `json:"compliance"`
	Interval   time.Duration `json:"interval"`
}

// EffectiveShape resolves Shape against the Hysteresis flag. An explicit
// Shape wins; otherwise Hysteresis selects ShapeReverse.
func (c Config) EffectiveShape() Shape {
	if c.Shape != "" {
		return c.Shape
	}
	if c.Hysteresis {
		return ShapeReverse
	}
	return ShapeLinear
}

// Validate checks c against the generator rules and the instrument limits
// for its mode. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Mode != ModeVoltage && c.Mode != ModeCurrent {
		return invalidf("unknown mode %d", int(c.Mode))
	}
	if c.Points < 1 {
		return invalidf("points must be >= 1, got %d", c.Points)
	}
	for name, v := range map[string]float64{"start": c.Start, "stop": c.Stop, "compliance": c.Compliance} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidf("%s must be finite", name)
		}
	}
	if c.Interval < 0 {
		return invalidf("interval must be >= 0, got %s", c.Interval)
	}
	switch c.Shape {
	case "", ShapeLinear, ShapeReverse, ShapeZeroCentered:
	default:
		return invalidf("unknown shape %q", c.Shape)
	}
	if err := c.Mode.Limits().Check(c.Start, c.Stop, c.Compliance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
