package timetable

import (
	"sync"
	"time"
)

// DefaultDebounce is the delay applied to rapid time step edits.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer runs only the last function scheduled within its delay. Each
// table owns its own instance so one table never cancels another's pending
// work.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	seq   uint64
}

// NewDebouncer returns a Debouncer. A non-positive delay runs functions
// synchronously.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn, cancelling any function still pending.
func (d *Debouncer) Do(fn func()) {
	if d.delay <= 0 {
		d.Stop()
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if seq != d.seq {
			// Superseded after the timer already fired.
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Stop cancels the pending function and reports whether one was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if d.timer == nil {
		return false
	}
	d.timer.Stop()
	d.timer = nil
	return true
}

// Pending reports whether a function is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
