package units

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{"plain", "1.5", 1.5},
		{"exponent", "3e-3", 0.003},
		{"milli", "100m", 0.1},
		{"micro ascii", "2u", 2e-6},
		{"micro sign", "2µ", 2e-6},
		{"kilo", "2k", 2000},
		{"negative milli", "-500m", -0.5},
		{"with unit", "100mV", 0.1},
		{"with unit and space", "1.5 A", 1.5},
		{"nano amps", "10nA", 10e-9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if math.Abs(got-tt.expected) > 1e-15*math.Max(1, math.Abs(tt.expected)) {
				t.Errorf("Parse(%q) = %g, want %g", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "  ", "abc", "10x", "m", "NaN", "Inf"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) expected error", input)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		v        float64
		unit     string
		expected string
	}{
		{0.1, Volt, "100 mV"},
		{1, Amp, "1 A"},
		{2e-6, Amp, "2 uA"},
		{-0.5, Volt, "-500 mV"},
		{20, Volt, "20 V"},
		{0, Volt, "0 V"},
	}
	for _, tt := range tests {
		if got := Format(tt.v, tt.unit); got != tt.expected {
			t.Errorf("Format(%g, %s) = %q, want %q", tt.v, tt.unit, got, tt.expected)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{Volt, true},
		{Amp, true},
		{Watt, true},
		{"v", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "V, A, W" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestLimitsCheck(t *testing.T) {
	tests := []struct {
		name       string
		limits     Limits
		start      float64
		stop       float64
		compliance float64
		wantErr    bool
	}{
		{"voltage in range", VoltageSource, -20, 20, 0.1, false},
		{"voltage bias too high", VoltageSource, 0, 20.5, 0.1, true},
		{"voltage compliance too high", VoltageSource, 0, 1, 1.5, true},
		{"zero compliance", VoltageSource, 0, 1, 0, true},
		{"current in range", CurrentSource, -1, 1, 20, false},
		{"current bias too high", CurrentSource, -1.2, 0, 1, true},
		{"current compliance too high", CurrentSource, 0, 0.1, 21, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Check(tt.start, tt.stop, tt.compliance)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Errorf("Check() = %v, want ErrOutOfRange", err)
				}
			} else if err != nil {
				t.Errorf("Check() unexpected error: %v", err)
			}
		})
	}
}
