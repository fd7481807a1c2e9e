// Package timer is a minimal scheduler with two cancellation policies.
//
// Callbacks are not run on the timer goroutine: when a timer fires, its
// callback is queued on the registry's channel and the owning loop executes
// it. That keeps every callback on the session dispatch goroutine, where
// state mutation is legal.
//
// A mode switch (leaving a run) clears cosmetic timers with
// ClearNonCritical while critical completion callbacks stay armed; Clear
// drops everything. A cancelled handle never executes, even if its timer
// fired concurrently with the cancellation.
package timer

import (
	"sync"
	"time"
)

// Handle identifies a scheduled callback.
type Handle uint64

// An entry stays registered from Schedule until its callback executes or
// is cancelled, including the window where it has fired and sits queued.
// cancelled is guarded by the registry mutex.
type entry struct {
	timer     *time.Timer
	critical  bool
	cancelled bool
}

// Registry schedules callbacks and funnels them to one consumer.
type Registry struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]*entry
	fired   chan func()
}

// New creates a registry. buffer bounds how many fired callbacks can queue
// before timer goroutines block.
func New(buffer int) *Registry {
	return &Registry{
		entries: make(map[Handle]*entry),
		fired:   make(chan func(), buffer),
	}
}

// C delivers fired callbacks. The owning loop must execute them.
func (r *Registry) C() <-chan func() {
	return r.fired
}

// Schedule arms a cosmetic callback after d.
func (r *Registry) Schedule(d time.Duration, fn func()) Handle {
	return r.schedule(d, fn, false)
}

// ScheduleCritical arms a callback that survives ClearNonCritical.
func (r *Registry) ScheduleCritical(d time.Duration, fn func()) Handle {
	return r.schedule(d, fn, true)
}

func (r *Registry) schedule(d time.Duration, fn func(), critical bool) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	e := &entry{critical: critical}
	e.timer = time.AfterFunc(d, func() {
		// The entry stays in the map until execution, so Cancel and the
		// Clear variants can still disarm a callback that has fired but
		// not yet run on the consumer loop.
		r.fired <- func() {
			r.mu.Lock()
			delete(r.entries, id)
			skip := e.cancelled
			r.mu.Unlock()

			if !skip {
				fn()
			}
		}
	})
	r.entries[id] = e
	return id
}

// Cancel disarms a handle. Once Cancel returns, the callback will not
// execute, even if it already fired and is queued. Unknown or
// already-executed handles return false.
func (r *Registry) Cancel(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok {
		return false
	}
	e.cancelled = true
	e.timer.Stop()
	delete(r.entries, h)
	return true
}

// Clear disarms every pending callback, critical ones included.
func (r *Registry) Clear() {
	r.clear(func(*entry) bool { return true })
}

// ClearNonCritical disarms every pending callback not flagged critical.
func (r *Registry) ClearNonCritical() {
	r.clear(func(e *entry) bool { return !e.critical })
}

func (r *Registry) clear(drop func(*entry) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.entries {
		if drop(e) {
			e.cancelled = true
			e.timer.Stop()
			delete(r.entries, id)
		}
	}
}

// Pending returns the number of callbacks that have not yet executed or
// been cancelled. For tests and diagnostics.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
