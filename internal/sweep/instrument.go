package sweep

// Instrument is the capability set the executor needs from an attached
// source-measure unit. Every call may block on hardware; none is given a
// timeout, so a hung call stalls the worker until it returns.
type Instrument interface {
	ConfigureSource(mode Mode) error
	SetCompliance(mode Mode, value float64) error
	SetOutputEnabled(on bool) error
	// SetBias sets the voltage or current level for the configured mode.
	SetBias(value float64) error
	// Measure triggers one reading.
	Measure() (voltage, current float64, err error)
}

// PlotSink consumes live samples. AddHandle is called once per run and
// Update once per sample, in acquisition order.
type PlotSink interface {
	AddHandle(label string) int
	Update(handle int, x, y float64)
}

// NopSink discards samples.
type NopSink struct{}

func (NopSink) AddHandle(string) int { return 0 }
func (NopSink) Update(int, float64, float64) {}
