// Package timeutil provides the clock the sweep worker reads timestamps
// from and paces setpoints with, so tests can drive time by hand.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source for sample timestamps and pacing.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTimer returns a timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is a one-shot timer whose wait can be abandoned with Stop.
type Timer interface {
	C() <-chan time.Time
	// Stop reports whether the timer was still pending.
	Stop() bool
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }
func (RealClock) NewTimer(d time.Duration) Timer { return stdTimer{time.NewTimer(d)} }

type stdTimer struct{ t *time.Timer }

func (s stdTimer) C() <-chan time.Time { return s.t.C }
func (s stdTimer) Stop() bool { return s.t.Stop() }

// MockClock only moves when Set or Advance is called. Timers fire during
// Advance once their deadline is reached.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*MockTimer
}

// NewMockClock returns a clock reading start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps the clock to t without firing timers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d and fires every pending timer whose
// deadline has passed. Fired and stopped timers are dropped.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	keep := c.pending[:0]
	for _, t := range c.pending {
		if !t.fireIfDue(c.now) {
			keep = append(keep, t)
		}
	}
	c.pending = keep
}

// NewTimer registers a timer due at Now()+d. A non-positive d fires on the
// next Advance, including Advance(0).
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{ch: make(chan time.Time, 1), deadline: c.now.Add(d)}
	c.pending = append(c.pending, t)
	return t
}

// PendingTimers counts timers that have neither fired nor been stopped.
// Tests poll it to know a goroutine is parked on a timer.
func (c *MockClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if t.active() {
			n++
		}
	}
	return n
}

// MockTimer is a timer created by MockClock.
type MockTimer struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	done     bool // fired or stopped
}

func (t *MockTimer) C() <-chan time.Time { return t.ch }

func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.done
	t.done = true
	return wasActive
}

func (t *MockTimer) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

// fireIfDue delivers now when the deadline has passed and reports whether
// the timer is finished.
func (t *MockTimer) fireIfDue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return true
	}
	if now.Before(t.deadline) {
		return false
	}
	t.done = true
	t.ch <- now
	return true
}
