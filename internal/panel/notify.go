package panel

import (
	"time"

	"github.com/banshee-data/sourcemeter/internal/sweep"
)

// Kind classifies a notification.
type Kind string

const (
	KindConfigured     Kind = "configured"
	KindInvalidConfig  Kind = "invalid_config"
	KindNotConfigured  Kind = "not_configured"
	KindRunStarted     Kind = "run_started"
	KindRunCompleted   Kind = "run_completed"
	KindRunAborted     Kind = "run_aborted"
	KindRunFailed      Kind = "run_failed"
	KindShutdownFailed Kind = "shutdown_failed"
	KindSaveSucceeded  Kind = "save_succeeded"
	KindSaveEmpty      Kind = "save_empty"
	KindSaveFailed     Kind = "save_failed"
	KindPlotReset      Kind = "plot_reset"
	KindRejected       Kind = "rejected"
)

// IsError reports whether the kind describes a failure.
func (k Kind) IsError() bool {
	switch k {
	case KindInvalidConfig, KindNotConfigured, KindRunFailed, KindShutdownFailed, KindSaveEmpty, KindSaveFailed, KindRejected:
		return true
	}
	return false
}

// Notification is a user-visible outcome.
type Notification struct {
	Kind    Kind              `json:"kind"`
	Message string            `json:"message"`
	Time    time.Time         `json:"time"`
	Run     *sweep.RunSummary `json:"run,omitempty"`
	Path    string            `json:"path,omitempty"`
}

// Event types delivered to subscribers.
const (
	EventSample       = "sample"
	EventNotification = "notification"
	EventState        = "state"
)

// Event is one item on the panel's event stream.
type Event struct {
	Type         string        `json:"type"`
	Sample       *SampleEvent  `json:"sample,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	State        string        `json:"state,omitempty"`
}

// SampleEvent is the JSON view of a sweep.Sample.
type SampleEvent struct {
	RunID  string  `json:"run_id"`
	Index  int     `json:"index"`
	Bias   float64 `json:"bias"`
	T      float64 `json:"t"`
	V      float64 `json:"v"`
	I      float64 `json:"i"`
	RTTSec float64 `json:"rtt_s"`
}

func sampleEvent(s sweep.Sample) *SampleEvent {
	return &SampleEvent{
		RunID:  s.RunID,
		Index:  s.Index,
		Bias:   s.Bias,
		T:      s.T,
		V:      s.V,
		I:      s.I,
		RTTSec: s.RoundTrip.Seconds(),
	}
}
