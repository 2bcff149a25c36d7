// Package scheduler provides the debounce gate used for model rebuilds and
// persistence writes.
package scheduler

import (
	"sync"
	"time"
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so debounced work can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}

// State describes a Debouncer: idle, or pending until Deadline.
type State struct {
	Pending  bool
	Deadline time.Time
}

// Debouncer runs fn once after delay has passed since the most recent
// Trigger. Only the latest request matters; bursts collapse into one call.
type Debouncer struct {
	mu       sync.Mutex
	clock    Clock
	delay    time.Duration
	fn       func()
	timer    Timer
	deadline time.Time
	pending  bool
	gen      uint64
	stopped  bool
}

// NewDebouncer creates an idle Debouncer. A nil clock uses the real clock.
func NewDebouncer(delay time.Duration, clock Clock, fn func()) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{
		clock: clock,
		delay: delay,
		fn:    fn,
	}
}

// Trigger (re)arms the timer so fn runs delay after this call.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.deadline = d.clock.Now().Add(d.delay)
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// State returns the current scheduling state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return State{Pending: d.pending, Deadline: d.deadline}
}

// Flush runs fn immediately if a call is pending and reports whether it did.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	d.resetLocked()
	d.mu.Unlock()

	d.fn()
	return true
}

// Cancel drops a pending call, returning the Debouncer to idle.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

// Stop cancels any pending call and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	d.stopped = true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.deadline = time.Time{}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

func (d *Debouncer) resetLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
	d.deadline = time.Time{}
}
