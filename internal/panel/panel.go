// Package panel coordinates the sweep executor, trace store, live plot and
// exports, and turns every outcome into a Notification.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/sourcemeter/internal/config"
	"github.com/banshee-data/sourcemeter/internal/fsutil"
	"github.com/banshee-data/sourcemeter/internal/monitoring"
	"github.com/banshee-data/sourcemeter/internal/plot"
	"github.com/banshee-data/sourcemeter/internal/security"
	"github.com/banshee-data/sourcemeter/internal/sweep"
	"github.com/banshee-data/sourcemeter/internal/timeutil"
)

var logf = monitoring.Component("panel")

const (
	historySize      = 64
	subscriberBuffer = 256
)

// ErrBusy reports an operation refused while a run is active.
var ErrBusy = errors.New("not allowed while a sweep is running")

// Options configures a Panel. Zero values select defaults.
type Options struct {
	// ExportDir is where Save writes files. Defaults to the working directory.
	ExportDir string
	FS        fsutil.FileSystem
	Metrics   *monitoring.Metrics
	Clock     timeutil.Clock
}

// Panel owns one executor and everything that observes it.
type Panel struct {
	exec      *sweep.Executor
	store     *sweep.Store
	live      *plot.Live
	fs        fsutil.FileSystem
	exportDir string
	metrics   *monitoring.Metrics
	clock     timeutil.Clock

	// opMu orders Start against ResetPlot so a reset never strands a
	// handle issued to a run.
	opMu sync.Mutex

	mu          sync.Mutex
	history     []Notification
	subscribers map[int]chan Event
	nextSub     int
}

// New creates a panel with an empty store and plot.
func New(o Options) *Panel {
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.ExportDir == "" {
		o.ExportDir = "."
	}
	p := &Panel{
		store:       sweep.NewStore(),
		live:        plot.NewLive(),
		fs:          o.FS,
		exportDir:   o.ExportDir,
		metrics:     o.Metrics,
		clock:       o.Clock,
		subscribers: make(map[int]chan Event),
	}
	p.exec = sweep.NewExecutor(p.store, p.live, sweep.Hooks{
		OnStateChange: p.onStateChange,
		OnSample:      p.onSample,
		OnRunFinished: p.onRunFinished,
	})
	p.exec.SetClock(o.Clock)
	if p.metrics != nil {
		p.metrics.SetState(sweep.StateIdle.String(), stateNames()...)
	}
	return p
}

func stateNames() []string {
	names := make([]string, len(sweep.States))
	for i, s := range sweep.States {
		names[i] = s.String()
	}
	return names
}

// Executor exposes the underlying executor.
func (p *Panel) Executor() *sweep.Executor { return p.exec }

// Store exposes the trace store.
func (p *Panel) Store() *sweep.Store { return p.store }

// Plot exposes the live plot.
func (p *Panel) Plot() *plot.Live { return p.live }

// ExportDir returns the directory Save writes into.
func (p *Panel) ExportDir() string { return p.exportDir }

// Attach sets the instrument used by subsequent runs.
func (p *Panel) Attach(inst sweep.Instrument) error {
	return p.exec.Attach(inst)
}

// Configure validates cfg and installs its plan.
func (p *Panel) Configure(cfg sweep.Config) (sweep.Plan, error) {
	plan, err := p.exec.Configure(cfg)
	switch {
	case err == nil:
		p.notify(Notification{
			Kind:    KindConfigured,
			Message: fmt.Sprintf("%s sweep %g to %g, %d setpoints", cfg.Mode, cfg.Start, cfg.Stop, len(plan)),
		})
	case errors.Is(err, sweep.ErrInvalidConfig):
		p.notify(Notification{Kind: KindInvalidConfig, Message: err.Error()})
	case errors.Is(err, sweep.ErrAlreadyRunning):
		p.notify(Notification{Kind: KindRejected, Message: "configure: " + err.Error()})
	}
	return plan, err
}

// ApplyConfig validates a panel configuration and installs the sweep it
// describes. Validation failures are reported like any invalid config.
func (p *Panel) ApplyConfig(pc *config.PanelConfig) (sweep.Plan, error) {
	if err := pc.Validate(); err != nil {
		if !errors.Is(err, sweep.ErrInvalidConfig) {
			err = fmt.Errorf("%w: %v", sweep.ErrInvalidConfig, err)
		}
		p.notify(Notification{Kind: KindInvalidConfig, Message: err.Error()})
		return nil, err
	}
	cfg, err := pc.SweepConfig()
	if err != nil {
		p.notify(Notification{Kind: KindInvalidConfig, Message: err.Error()})
		return nil, err
	}
	return p.Configure(cfg)
}

// Start begins a run.
func (p *Panel) Start() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	err := p.exec.Start()
	var ie *sweep.InstrumentError
	switch {
	case err == nil:
		p.notify(Notification{Kind: KindRunStarted, Message: fmt.Sprintf("sweep started: %d setpoints", len(p.exec.Plan()))})
	case errors.Is(err, sweep.ErrNotConfigured):
		p.notify(Notification{Kind: KindNotConfigured, Message: err.Error()})
	case errors.Is(err, sweep.ErrAlreadyRunning):
		p.notify(Notification{Kind: KindRejected, Message: "start: " + err.Error()})
	case errors.As(err, &ie):
		p.notify(Notification{Kind: KindRunFailed, Message: err.Error()})
		if p.metrics != nil {
			p.metrics.RunFinished(monitoring.OutcomeFailed)
		}
	}
	return err
}

// Abort stops the active run and waits for it to be finalized.
func (p *Panel) Abort() error {
	err := p.exec.Abort()
	if errors.Is(err, sweep.ErrNotRunning) {
		p.notify(Notification{Kind: KindRejected, Message: "abort: " + err.Error()})
	}
	return err
}

// Wait blocks until the latest run is finalized.
func (p *Panel) Wait(ctx context.Context) error {
	return p.exec.Wait(ctx)
}

// Status is the panel snapshot served to clients.
type Status struct {
	sweep.Status
	Traces    int    `json:"traces"`
	Series    int    `json:"series"`
	ExportDir string `json:"export_dir"`
}

// Status returns a snapshot of the executor and store.
func (p *Panel) Status() Status {
	return Status{
		Status:    p.exec.Status(),
		Traces:    p.store.Len(),
		Series:    p.live.Len(),
		ExportDir: p.exportDir,
	}
}

// Export writes every stored record to w. Only an empty store is
// reported as a notification; writer failures belong to the caller.
func (p *Panel) Export(w io.Writer) error {
	err := sweep.Export(w, p.store.Records())
	if errors.Is(err, sweep.ErrNoData) {
		p.notify(Notification{Kind: KindSaveEmpty, Message: "no data to export"})
	}
	return err
}

// DefaultFilename names an export by its time.
func DefaultFilename(t time.Time) string {
	return "sweep-" + t.UTC().Format("20060102T150405Z") + ".txt"
}

// Save exports the store to name inside the export directory and returns
// the path written. An empty name selects DefaultFilename.
func (p *Panel) Save(name string) (string, error) {
	if name == "" {
		name = DefaultFilename(p.clock.Now())
	}
	path, err := p.resolve(name)
	if err != nil {
		p.notify(Notification{Kind: KindSaveFailed, Message: err.Error()})
		return "", err
	}
	if err := p.fs.MkdirAll(p.exportDir, 0o755); err != nil {
		err = &sweep.ExportError{Path: path, Err: err}
		p.notify(Notification{Kind: KindSaveFailed, Message: err.Error(), Path: path})
		return "", err
	}
	if err := security.ValidatePathWithinDirectory(path, p.exportDir); err != nil {
		p.notify(Notification{Kind: KindSaveFailed, Message: err.Error(), Path: path})
		return "", err
	}

	err = sweep.SaveFile(p.fs, path, p.store.Records())
	switch {
	case err == nil:
		logf("saved %d traces to %s", p.store.Len(), path)
		p.notify(Notification{Kind: KindSaveSucceeded, Message: "saved " + path, Path: path})
		return path, nil
	case errors.Is(err, sweep.ErrNoData):
		p.notify(Notification{Kind: KindSaveEmpty, Message: "no data to save", Path: path})
	default:
		p.notify(Notification{Kind: KindSaveFailed, Message: err.Error(), Path: path})
	}
	return "", err
}

// resolve maps a client-supplied name to a file in the export directory.
// Directory components are not allowed.
func (p *Panel) resolve(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid export name %q: must be a plain file name", name)
	}
	return filepath.Join(p.exportDir, security.SanitizeFilename(name)), nil
}

// ResetPlot clears the plot and the trace store together, keeping plot
// handles and stored records paired. It is refused while a run is active.
func (p *Panel) ResetPlot() error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if st := p.exec.State(); st != sweep.StateIdle {
		err := fmt.Errorf("reset plot: %w", ErrBusy)
		p.notify(Notification{Kind: KindRejected, Message: err.Error()})
		return err
	}
	n := p.store.Len()
	p.live.Reset()
	p.store.Clear()
	if p.metrics != nil {
		p.metrics.SetTracesStored(0)
	}
	p.notify(Notification{Kind: KindPlotReset, Message: fmt.Sprintf("cleared %d traces", n)})
	return nil
}

// Notifications returns the most recent notifications, oldest first.
func (p *Panel) Notifications() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.history...)
}

// Subscribe returns a channel receiving every subsequent event.
func (p *Panel) Subscribe() (int, <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan Event, subscriberBuffer)
	p.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (p *Panel) Unsubscribe(id int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch, ok := p.subscribers[id]; ok {
		close(ch)
		delete(p.subscribers, id)
	}
}

func (p *Panel) notify(n Notification) {
	if n.Time.IsZero() {
		n.Time = p.clock.Now()
	}
	if n.Kind.IsError() {
		logf("%s: %s", n.Kind, n.Message)
	}
	p.mu.Lock()
	p.history = append(p.history, n)
	if len(p.history) > historySize {
		p.history = p.history[len(p.history)-historySize:]
	}
	p.mu.Unlock()
	p.publish(Event{Type: EventNotification, Notification: &n})
}

func (p *Panel) publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

// onStateChange runs with the executor locked.
func (p *Panel) onStateChange(_, to sweep.State) {
	if p.metrics != nil {
		p.metrics.SetState(to.String(), stateNames()...)
	}
	p.publish(Event{Type: EventState, State: to.String()})
}

func (p *Panel) onSample(s sweep.Sample) {
	if p.metrics != nil {
		p.metrics.ObserveSample(s.RoundTrip)
	}
	p.publish(Event{Type: EventSample, Sample: sampleEvent(s)})
}

func (p *Panel) onRunFinished(res sweep.RunResult) {
	summary := res.Summary()
	if p.metrics != nil {
		p.metrics.RunFinished(res.Outcome())
		p.metrics.SetTracesStored(p.store.Len())
	}

	switch res.Outcome() {
	case sweep.OutcomeFailed:
		p.notify(Notification{Kind: KindRunFailed, Message: res.Err.Error(), Run: &summary})
	case sweep.OutcomeAborted:
		p.notify(Notification{Kind: KindRunAborted, Message: fmt.Sprintf("sweep aborted after %d samples", summary.Samples), Run: &summary})
	default:
		p.notify(Notification{Kind: KindRunCompleted, Message: fmt.Sprintf("sweep completed: %d samples", summary.Samples), Run: &summary})
	}
	if res.ShutdownErr != nil {
		p.notify(Notification{Kind: KindShutdownFailed, Message: res.ShutdownErr.Error(), Run: &summary})
	}
}
