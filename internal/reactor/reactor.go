// Package reactor runs periodic callbacks from a single goroutine.
// Callbacks return their next wake time, so each one reschedules itself.
package reactor

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Callback runs at its wake time and returns the next one.
// Returning the zero time unregisters the callback.
type Callback func(now time.Time) time.Time

type timer struct {
	id       int
	callback Callback
	wake     time.Time
}

// Reactor is a shared cooperative timer facility. Callbacks run one at a
// time, in wake order, and must not block.
type Reactor struct {
	now func() time.Time

	mu     sync.Mutex
	timers []*timer
	nextID int
	kick   chan struct{}
}

// New creates a Reactor using now as its clock.
func New(now func() time.Time) *Reactor {
	if now == nil {
		now = time.Now
	}
	return &Reactor{
		now:  now,
		kick: make(chan struct{}, 1),
	}
}

// RegisterTimer schedules cb to first run at first.
func (r *Reactor) RegisterTimer(cb Callback, first time.Time) {
	r.mu.Lock()
	r.nextID++
	r.timers = append(r.timers, &timer{id: r.nextID, callback: cb, wake: first})
	r.mu.Unlock()

	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Len returns the number of registered callbacks.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Step runs every callback due at now and returns the earliest remaining
// wake time, or the zero time if nothing is registered.
func (r *Reactor) Step(now time.Time) time.Time {
	ran := make(map[int]bool)
	for {
		t := r.popDue(now, ran)
		if t == nil {
			break
		}
		ran[t.id] = true
		next := t.callback(now)

		r.mu.Lock()
		if next.IsZero() {
			r.remove(t.id)
		} else {
			t.wake = next
		}
		r.mu.Unlock()
	}
	return r.NextWake()
}

// NextWake returns the earliest registered wake time.
func (r *Reactor) NextWake() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var next time.Time
	for _, t := range r.timers {
		if next.IsZero() || t.wake.Before(next) {
			next = t.wake
		}
	}
	return next
}

// popDue returns the earliest due timer not yet run in this step, or nil.
// Ties run in registration order.
func (r *Reactor) popDue(now time.Time, ran map[int]bool) *timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.SliceStable(r.timers, func(i, j int) bool {
		return r.timers[i].wake.Before(r.timers[j].wake)
	})
	for _, t := range r.timers {
		if !ran[t.id] && !t.wake.After(now) {
			return t
		}
	}
	return nil
}

func (r *Reactor) remove(id int) {
	for i, t := range r.timers {
		if t.id == id {
			r.timers = append(r.timers[:i], r.timers[i+1:]...)
			return
		}
	}
}

// Run steps the reactor until ctx is cancelled.
func (r *Reactor) Run(ctx context.Context) error {
	idle := time.Minute
	for {
		next := r.Step(r.now())

		wait := idle
		if !next.IsZero() {
			wait = next.Sub(r.now())
		}
		if wait < 0 {
			wait = 0
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-r.kick:
			t.Stop()
		case <-t.C:
		}
	}
}
