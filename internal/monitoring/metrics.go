package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "outcome" label on sourcemeter_sweep_runs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors for the sweep engine. Use a private
// registry in tests so repeated construction does not collide.
type Metrics struct {
	runs         *prometheus.CounterVec
	samples      prometheus.Counter
	sampleTime   prometheus.Histogram
	state        *prometheus.GaugeVec
	tracesStored prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sourcemeter_sweep_runs_total",
				Help: "Total number of finished sweep runs by outcome",
			},
			[]string{"outcome"},
		),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sourcemeter_sweep_samples_total",
			Help: "Total number of bias/measure samples acquired",
		}),
		sampleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sourcemeter_sweep_sample_seconds",
			Help:    "Instrument round trip for one set-bias plus measure",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sourcemeter_sweep_state",
				Help: "1 for the executor's current state, 0 otherwise",
			},
			[]string{"state"},
		),
		tracesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sourcemeter_traces_stored",
			Help: "Number of sealed sweep records held in the trace store",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.samples, m.sampleTime, m.state, m.tracesStored)
	}
	return m
}

// RunFinished counts a finished run.
func (m *Metrics) RunFinished(outcome string) {
	m.runs.WithLabelValues(outcome).Inc()
}

// ObserveSample records one acquired sample and its round-trip time.
func (m *Metrics) ObserveSample(d time.Duration) {
	m.samples.Inc()
	m.sampleTime.Observe(d.Seconds())
}

// SetState flips the state gauge so exactly one of states reads 1.
func (m *Metrics) SetState(current string, states ...string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

// SetTracesStored reports the trace store size.
func (m *Metrics) SetTracesStored(n int) {
	m.tracesStored.Set(float64(n))
}
