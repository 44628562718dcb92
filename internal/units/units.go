// Package units provides SI-prefixed parsing and per-mode limits for
// source-measure quantities.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit constants
const (
	Volt = "V"
	Amp  = "A"
	Watt = "W"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Volt, Amp, Watt}

// ErrOutOfRange reports a value outside the instrument limits.
var ErrOutOfRange = errors.New("value out of range")

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

type prefix struct {
	symbol string
	scale  float64
}

// Largest first so Format picks the widest prefix that keeps |mantissa| >= 1.
var prefixes = []prefix{
	{"G", 1e9},
	{"M", 1e6},
	{"k", 1e3},
	{"", 1},
	{"m", 1e-3},
	{"u", 1e-6},
	{"n", 1e-9},
	{"p", 1e-12},
}

func prefixScale(s string) (float64, bool) {
	if s == "µ" || s == "μ" {
		return 1e-6, true
	}
	for _, p := range prefixes {
		if p.symbol == s {
			return p.scale, true
		}
	}
	return 0, false
}

// Parse converts a string such as "100m", "1.5uA", "-2 V" or "3e-3" to a
// float64 in base units. A trailing unit symbol is accepted and ignored
// when it is one of ValidUnits.
func Parse(s string) (float64, error) {
	str := strings.TrimSpace(s)
	if str == "" {
		return 0, fmt.Errorf("parse %q: empty value", s)
	}
	for _, u := range ValidUnits {
		if strings.HasSuffix(str, u) && len(str) > len(u) {
			str = strings.TrimSpace(strings.TrimSuffix(str, u))
			break
		}
	}

	if v, err := strconv.ParseFloat(str, 64); err == nil {
		return checkFinite(s, v)
	}

	// Prefix is the last rune; µ is multi-byte.
	r := []rune(str)
	scale, ok := prefixScale(string(r[len(r)-1]))
	if !ok {
		return 0, fmt.Errorf("parse %q: unknown prefix %q", s, string(r[len(r)-1]))
	}
	mantissa := strings.TrimSpace(string(r[:len(r)-1]))
	v, err := strconv.ParseFloat(mantissa, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return checkFinite(s, v*scale)
}

func checkFinite(s string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse %q: value must be finite", s)
	}
	return v, nil
}

// Format renders v with an SI prefix and the given unit, e.g. 0.1 → "100 mV".
func Format(v float64, unit string) string {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return strings.TrimSpace(strconv.FormatFloat(v, 'g', -1, 64) + " " + unit)
	}
	abs := math.Abs(v)
	p := prefixes[len(prefixes)-1]
	for _, candidate := range prefixes {
		if abs >= candidate.scale {
			p = candidate
			break
		}
	}
	mantissa := strconv.FormatFloat(v/p.scale, 'g', 4, 64)
	return strings.TrimSpace(mantissa + " " + p.symbol + unit)
}
