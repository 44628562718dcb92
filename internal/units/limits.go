package units

import (
	"fmt"
	"math"
)

// Limits bounds the swept quantity and its compliance for one source mode.
type Limits struct {
	BiasUnit       string
	MaxBias        float64
	ComplianceUnit string
	MaxCompliance  float64
}

// Keithley 2400 front-panel limits used by the control panel.
var (
	VoltageSource = Limits{BiasUnit: Volt, MaxBias: 20, ComplianceUnit: Amp, MaxCompliance: 1}
	CurrentSource = Limits{BiasUnit: Amp, MaxBias: 1, ComplianceUnit: Volt, MaxCompliance: 20}
)

// Check reports ErrOutOfRange when start or stop exceed ±MaxBias or the
// compliance is not in (0, MaxCompliance].
func (l Limits) Check(start, stop, compliance float64) error {
	for _, v := range []float64{start, stop} {
		if math.Abs(v) > l.MaxBias {
			return fmt.Errorf("%w: bias %s exceeds ±%s", ErrOutOfRange,
				Format(v, l.BiasUnit), Format(l.MaxBias, l.BiasUnit))
		}
	}
	if compliance <= 0 || compliance > l.MaxCompliance {
		return fmt.Errorf("%w: compliance %s not in (0, %s]", ErrOutOfRange,
			Format(compliance, l.ComplianceUnit), Format(l.MaxCompliance, l.ComplianceUnit))
	}
	return nil
}
