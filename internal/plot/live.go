// Package plot collects sweep samples into per-run series and renders them.
package plot

import (
	"sync"

	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/sourcemeter/internal/monitoring"
	"github.com/banshee-data/sourcemeter/internal/sweep"
)

var logf = monitoring.Component("plot")

const subscriberBuffer = 256

// Series is one labelled curve. Points are in arrival order.
type Series struct {
	Label  string      `json:"label"`
	Points plotter.XYs `json:"points"`
}

// Point is a single update delivered to subscribers.
type Point struct {
	Handle int     `json:"handle"`
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Live is a sweep.PlotSink that keeps every series in memory and fans
// points out to subscribers. Each handle returned by AddHandle indexes the
// series list, so handles are stable until Reset.
type Live struct {
	mu     sync.RWMutex
	series []Series

	subMu       sync.Mutex
	subscribers map[int]chan Point
	nextSub     int
}

var _ sweep.PlotSink = (*Live)(nil)

// NewLive returns an empty plot.
func NewLive() *Live {
	return &Live{subscribers: make(map[int]chan Point)}
}

// AddHandle starts a new series.
func (l *Live) AddHandle(label string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.series = append(l.series, Series{Label: label})
	return len(l.series) - 1
}

// Update appends (x, y) to the series for handle. Unknown handles, such as
// one issued before a Reset, are dropped.
func (l *Live) Update(handle int, x, y float64) {
	l.mu.Lock()
	if handle < 0 || handle >= len(l.series) {
		l.mu.Unlock()
		logf("dropping point for unknown handle %d", handle)
		return
	}
	l.series[handle].Points = append(l.series[handle].Points, plotter.XY{X: x, Y: y})
	label := l.series[handle].Label
	l.mu.Unlock()

	l.publish(Point{Handle: handle, Label: label, X: x, Y: y})
}

// Series returns a copy of every series.
func (l *Live) Series() []Series {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Series, len(l.series))
	for i, s := range l.series {
		out[i] = Series{Label: s.Label, Points: append(plotter.XYs(nil), s.Points...)}
	}
	return out
}

// Len returns the number of series.
func (l *Live) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.series)
}

// Reset discards every series. Handles issued earlier become invalid.
func (l *Live) Reset() {
	l.mu.Lock()
	l.series = nil
	l.mu.Unlock()
}

// Subscribe returns a channel receiving every subsequent point. Slow
// subscribers miss points rather than stalling acquisition.
func (l *Live) Subscribe() (int, <-chan Point) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextSub
	l.nextSub++
	ch := make(chan Point, subscriberBuffer)
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and removes a subscription.
func (l *Live) Unsubscribe(id int) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

func (l *Live) publish(p Point) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- p:
		default:
		}
	}
}
