package sweep

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// Record is a sealed sweep trace. T, V, I and P always have equal length
// and P[i] == V[i]*I[i]. Records are values; the store and the executor
// hand out clones so holders cannot mutate each other's slices.
type Record struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	StartedAt time.Time `json:"started_at"`
	Aborted   bool      `json:"aborted"`
	Err       string    `json:"error,omitempty"`
	T         []float64 `json:"t"`
	V         []float64 `json:"v"`
	I         []float64 `json:"i"`
	P         []float64 `json:"p"`
}

// Len returns the number of samples.
func (r Record) Len() int { return len(r.T) }

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	c := r
	c.T = append([]float64(nil), r.T...)
	c.V = append([]float64(nil), r.V...)
	c.I = append([]float64(nil), r.I...)
	c.P = append([]float64(nil), r.P...)
	return c
}

// recorder accumulates samples for the run in progress. Only the worker
// goroutine touches it.
type recorder struct {
	t, v, i []float64
}

func newRecorder(capacity int) *recorder {
	return &recorder{
		t: make([]float64, 0, capacity),
		v: make([]float64, 0, capacity),
		i: make([]float64, 0, capacity),
	}
}

func (r *recorder) add(elapsed time.Duration, v, i float64) {
	r.t = append(r.t, elapsed.Seconds())
	r.v = append(r.v, v)
	r.i = append(r.i, i)
}

func (r *recorder) len() int { return len(r.t) }

// seal computes P and returns the finished record. The recorder must not be
// used afterwards.
func (r *recorder) seal(rec Record) Record {
	rec.T, rec.V, rec.I = r.t, r.v, r.i
	rec.P = floats.MulTo(make([]float64, len(r.v)), r.v, r.i)
	r.t, r.v, r.i = nil, nil, nil
	return rec
}
