package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sourcemeter/internal/monitoring"
	"github.com/banshee-data/sourcemeter/internal/timeutil"
)

var logf = monitoring.Component("sweep")

// State is the executor's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAborting
)

// States lists every State in declaration order.
var States = []State{StateIdle, StateRunning, StateAborting}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range States {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Run outcomes reported by RunResult.Outcome.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// Sample is one acquired point, published after it has been recorded.
type Sample struct {
	RunID     string
	Index     int
	Bias      float64
	T         float64
	V         float64
	I         float64
	RoundTrip time.Duration
}

// RunResult describes a finalized run. Err is the instrument failure that
// ended the run early, if any. ShutdownErr collects failures from the
// zero-bias and output-off sequence; it never replaces Err.
type RunResult struct {
	Record      Record
	Aborted     bool
	Err         error
	ShutdownErr error
}

// Outcome classifies the run as completed, aborted or failed.
func (r RunResult) Outcome() string {
	switch {
	case r.Err != nil:
		return OutcomeFailed
	case r.Aborted:
		return OutcomeAborted
	default:
		return OutcomeCompleted
	}
}

// RunSummary is the JSON view of a RunResult.
type RunSummary struct {
	ID            string    `json:"id"`
	Outcome       string    `json:"outcome"`
	Samples       int       `json:"samples"`
	StartedAt     time.Time `json:"started_at"`
	Error         string    `json:"error,omitempty"`
	ShutdownError string    `json:"shutdown_error,omitempty"`
}

// Summary returns the JSON view of r.
func (r RunResult) Summary() RunSummary {
	s := RunSummary{
		ID:        r.Record.ID,
		Outcome:   r.Outcome(),
		Samples:   r.Record.Len(),
		StartedAt: r.Record.StartedAt,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	if r.ShutdownErr != nil {
		s.ShutdownError = r.ShutdownErr.Error()
	}
	return s
}

// Hooks observe the executor. OnStateChange runs with the executor locked
// and must not call back into it. OnSample runs on the worker goroutine.
// OnRunFinished runs on the worker after the state is back to Idle and
// before Abort or Wait return.
type Hooks struct {
	OnStateChange func(from, to State)
	OnSample      func(Sample)
	OnRunFinished func(RunResult)
}

// Status is a point-in-time snapshot of the executor.
type Status struct {
	State              State       `json:"state"`
	Configured         bool        `json:"configured"`
	Config             *Config     `json:"config,omitempty"`
	PlanPoints         int         `json:"plan_points"`
	InstrumentAttached bool        `json:"instrument_attached"`
	LastRun            *RunSummary `json:"last_run,omitempty"`
}

// Executor runs sweeps against one instrument, one run at a time.
type Executor struct {
	store *Store
	sink  PlotSink
	hooks Hooks
	clock timeutil.Clock

	mu       sync.Mutex
	state    State
	starting bool
	cfg      Config
	plan     Plan
	inst     Instrument
	cancel   context.CancelFunc
	done     chan struct{}
	last     *RunResult
	runs     int
}

// NewExecutor creates an idle executor that seals records into store and
// streams (V, I) points to sink. A nil sink discards samples.
func NewExecutor(store *Store, sink PlotSink, hooks Hooks) *Executor {
	if sink == nil {
		sink = NopSink{}
	}
	return &Executor{
		store: store,
		sink:  sink,
		hooks: hooks,
		clock: timeutil.RealClock{},
		state: StateIdle,
	}
}

// SetClock replaces the clock used for elapsed time and pacing.
func (e *Executor) SetClock(c timeutil.Clock) {
	e.mu.Lock()
	e.clock = c
	e.mu.Unlock()
}

// setState must be called with e.mu held.
func (e *Executor) setState(to State) {
	from := e.state
	e.state = to
	if from != to && e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(from, to)
	}
}

// busy must be called with e.mu held.
func (e *Executor) busy() bool {
	return e.state != StateIdle || e.starting
}

// Configure validates cfg and replaces the plan. The previous plan is kept
// when cfg is invalid.
func (e *Executor) Configure(cfg Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	plan, err := GenerateShape(cfg.Start, cfg.Stop, cfg.Points, cfg.EffectiveShape())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy() {
		return nil, ErrAlreadyRunning
	}
	e.cfg = cfg
	e.plan = plan
	logf("configured %s sweep %g → %g, %d setpoints (%s)", cfg.Mode, cfg.Start, cfg.Stop, len(plan), cfg.EffectiveShape())
	return append(Plan(nil), plan...), nil
}

// Attach sets the instrument used by subsequent runs. Passing nil detaches.
func (e *Executor) Attach(inst Instrument) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy() {
		return ErrAlreadyRunning
	}
	e.inst = inst
	return nil
}

// Plan returns a copy of the current plan, or nil when unconfigured.
func (e *Executor) Plan() Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.plan == nil {
		return nil
	}
	return append(Plan(nil), e.plan...)
}

// State returns the current state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastResult returns the most recently finalized run.
func (e *Executor) LastResult() (RunResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return RunResult{}, false
	}
	res := *e.last
	res.Record = res.Record.Clone()
	return res, true
}

// Status returns a snapshot for display.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:              e.state,
		Configured:         len(e.plan) > 0,
		PlanPoints:         len(e.plan),
		InstrumentAttached: e.inst != nil,
	}
	if st.Configured {
		cfg := e.cfg
		st.Config = &cfg
	}
	if e.last != nil {
		summary := e.last.Summary()
		st.LastRun = &summary
	}
	return st
}

type run struct {
	id       string
	cfg      Config
	plan     Plan
	inst     Instrument
	handle   int
	clock    timeutil.Clock
	started  time.Time
	interval time.Duration
}

// Start begins a run. The source mode and compliance are programmed
// synchronously so configuration failures surface here as an
// *InstrumentError with the executor still Idle. Sampling then proceeds on
// a background goroutine.
func (e *Executor) Start() error {
	e.mu.Lock()
	if e.busy() {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(e.plan) == 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: no sweep plan", ErrNotConfigured)
	}
	if e.inst == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: no instrument attached", ErrNotConfigured)
	}
	e.starting = true
	r := run{
		id:       uuid.NewString(),
		cfg:      e.cfg,
		plan:     e.plan,
		inst:     e.inst,
		clock:    e.clock,
		interval: e.cfg.Interval,
	}
	e.mu.Unlock()

	if err := r.inst.ConfigureSource(r.cfg.Mode); err != nil {
		e.abandonStart()
		return &InstrumentError{Op: "configure source", Err: err}
	}
	if err := r.inst.SetCompliance(r.cfg.Mode, r.cfg.Compliance); err != nil {
		e.abandonStart()
		return &InstrumentError{Op: "set compliance", Err: err}
	}

	e.mu.Lock()
	e.starting = false
	e.runs++
	r.handle = e.sink.AddHandle(fmt.Sprintf("%s sweep %d", r.cfg.Mode, e.runs))
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	done := make(chan struct{})
	e.done = done
	e.setState(StateRunning)
	e.mu.Unlock()

	logf("run %s started: %d setpoints, interval %s", r.id, len(r.plan), r.interval)
	go e.work(ctx, cancel, r, done)
	return nil
}

func (e *Executor) abandonStart() {
	e.mu.Lock()
	e.starting = false
	e.mu.Unlock()
}

// Abort asks the running worker to stop between samples and blocks until
// it has finalized the run. Aborting an already-aborting run joins it.
func (e *Executor) Abort() error {
	e.mu.Lock()
	switch e.state {
	case StateIdle:
		e.mu.Unlock()
		return ErrNotRunning
	case StateRunning:
		e.setState(StateAborting)
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Wait blocks until the most recent run has finalized or ctx is done. It
// returns immediately when no run was ever started.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) work(ctx context.Context, cancel context.CancelFunc, r run, done chan struct{}) {
	defer close(done)
	defer cancel()

	rec := newRecorder(len(r.plan))
	r.started = r.clock.Now()

	var aborted bool
	var runErr error
	if err := r.inst.SetOutputEnabled(true); err != nil {
		runErr = &InstrumentError{Op: "output on", Err: err}
	} else {
		aborted, runErr = e.acquire(ctx, r, rec)
	}
	e.finalize(r, rec, aborted, runErr)
}

// acquire walks the plan. It returns aborted=true when ctx was cancelled
// before the plan was exhausted.
func (e *Executor) acquire(ctx context.Context, r run, rec *recorder) (bool, error) {
	for i, bias := range r.plan {
		if i > 0 && r.interval > 0 {
			timer := r.clock.NewTimer(r.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return true, nil
			case <-timer.C():
			}
		}
		if ctx.Err() != nil {
			return true, nil
		}

		began := r.clock.Now()
		if err := r.inst.SetBias(bias); err != nil {
			return false, &InstrumentError{Op: "set bias", Err: err}
		}
		v, c, err := r.inst.Measure()
		if err != nil {
			return false, &InstrumentError{Op: "measure", Err: err}
		}
		roundTrip := r.clock.Since(began)
		elapsed := r.clock.Since(r.started)
		rec.add(elapsed, v, c)

		e.sink.Update(r.handle, v, c)
		if e.hooks.OnSample != nil {
			e.hooks.OnSample(Sample{
				RunID:     r.id,
				Index:     i,
				Bias:      bias,
				T:         elapsed.Seconds(),
				V:         v,
				I:         c,
				RoundTrip: roundTrip,
			})
		}
	}
	return false, nil
}

func (e *Executor) finalize(r run, rec *recorder, aborted bool, runErr error) {
	record := rec.seal(Record{
		ID:        r.id,
		Mode:      r.cfg.Mode,
		StartedAt: r.started,
		Aborted:   aborted,
	})
	if runErr != nil {
		record.Err = runErr.Error()
	}
	e.store.Append(record)

	res := RunResult{Record: record.Clone(), Aborted: aborted, Err: runErr}

	var shutdown []error
	if err := r.inst.SetBias(0); err != nil {
		shutdown = append(shutdown, &InstrumentError{Op: "zero bias", Err: err})
	}
	if err := r.inst.SetOutputEnabled(false); err != nil {
		shutdown = append(shutdown, &InstrumentError{Op: "output off", Err: err})
	}
	res.ShutdownErr = errors.Join(shutdown...)

	switch {
	case runErr != nil:
		logf("run %s failed after %d samples: %v", r.id, record.Len(), runErr)
	case aborted:
		logf("run %s aborted after %d/%d samples", r.id, record.Len(), len(r.plan))
	default:
		logf("run %s completed: %d samples", r.id, record.Len())
	}
	if res.ShutdownErr != nil {
		logf("run %s shutdown incomplete: %v", r.id, res.ShutdownErr)
	}

	e.mu.Lock()
	e.cancel = nil
	e.last = &res
	e.setState(StateIdle)
	e.mu.Unlock()

	if e.hooks.OnRunFinished != nil {
		e.hooks.OnRunFinished(res)
	}
}
