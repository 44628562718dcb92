package sweep

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeInstrument models a resistor on the output terminals and logs every
// call. Failures and blocking are injected per operation.
type fakeInstrument struct {
	mu         sync.Mutex
	resistance float64
	mode       Mode
	bias       float64
	calls      []string
	fail       map[string]error
	failAt     int // fail the n-th Measure (1-based) with fail["measure"]
	measures   int
	onMeasure  func(n int)
}

func newFakeInstrument() *fakeInstrument {
	return &fakeInstrument{resistance: 1000, fail: map[string]error{}}
}

func (f *fakeInstrument) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.fail[call]
}

func (f *fakeInstrument) ConfigureSource(mode Mode) error {
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	return f.record("configure " + mode.String())
}

func (f *fakeInstrument) SetCompliance(mode Mode, value float64) error {
	return f.record(fmt.Sprintf("compliance %g", value))
}

func (f *fakeInstrument) SetOutputEnabled(on bool) error {
	if on {
		return f.record("output on")
	}
	return f.record("output off")
}

func (f *fakeInstrument) SetBias(value float64) error {
	f.mu.Lock()
	f.bias = value
	f.mu.Unlock()
	return f.record(fmt.Sprintf("bias %g", value))
}

func (f *fakeInstrument) Measure() (float64, float64, error) {
	f.mu.Lock()
	f.measures++
	n := f.measures
	hook := f.onMeasure
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}

	f.mu.Lock()
	f.calls = append(f.calls, "measure")
	var err error
	if f.failAt > 0 && n == f.failAt {
		err = f.fail["measure"]
	}
	bias, mode, r := f.bias, f.mode, f.resistance
	f.mu.Unlock()

	if err != nil {
		return 0, 0, err
	}
	if mode == ModeCurrent {
		return bias * r, bias, nil
	}
	return bias, bias / r, nil
}

func (f *fakeInstrument) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type point struct{ x, y float64 }

// recordingSink is a goroutine-safe PlotSink.
type recordingSink struct {
	mu     sync.Mutex
	labels []string
	points map[int][]point
}

func newRecordingSink() *recordingSink {
	return &recordingSink{points: map[int][]point{}}
}

func (s *recordingSink) AddHandle(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, label)
	return len(s.labels) - 1
}

func (s *recordingSink) Update(handle int, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[handle] = append(s.points[handle], point{x, y})
}

func (s *recordingSink) Points(handle int) []point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]point(nil), s.points[handle]...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
