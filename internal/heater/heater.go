// Package heater provides the proxy that sits between a heater's control
// loop and its hardware output. Group membership swaps the proxy's Policy
// rather than changing the heater itself.
package heater

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/heater-share/internal/logic"
)

// Output drives a physical heater. Drive is fire-and-forget: the new power
// level takes effect at or after the given time.
type Output interface {
	Drive(at time.Time, power float64) error
}

// State is where a heater sits in the per-cycle lifecycle.
type State string

const (
	StateIdle     State = "IDLE"
	StateAssigned State = "ASSIGNED"
	StateActive   State = "ACTIVE"
)

// Heater wraps a single heating element.
type Heater struct {
	name string
	out  Output

	// Written by the control loop, read by the scheduler.
	duty    atomic.Uint64
	temp    atomic.Uint64
	target  atomic.Uint64
	updated atomic.Int64

	mu        sync.Mutex
	policy    Policy
	schedule  []logic.Window
	cycleEnd  time.Time
	box       int
	realized  float64
	lastPower float64
}

// New creates a heater driving out directly until a group takes it over.
func New(name string, out Output) *Heater {
	return &Heater{
		name:   name,
		out:    out,
		policy: Direct{},
		box:    -1,
	}
}

// Name returns the heater's configured name.
func (h *Heater) Name() string {
	return h.name
}

// SetPolicy replaces how requested power reaches the output.
func (h *Heater) SetPolicy(p Policy) {
	h.mu.Lock()
	h.policy = p
	h.mu.Unlock()
}

// Policy returns the current power policy.
func (h *Heater) Policy() Policy {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.policy
}

// SetDuty records the control loop's requested duty cycle and passes it
// through the current policy. Values are clamped to [0,1].
func (h *Heater) SetDuty(at time.Time, value float64) error {
	value = clampUnit(value)
	h.duty.Store(math.Float64bits(value))
	h.updated.Store(at.UnixNano())

	power, drive := h.Policy().Pass(h, value)
	if !drive {
		return nil
	}
	return h.drive(at, power)
}

// Duty returns the most recently requested duty cycle.
func (h *Heater) Duty() float64 {
	return math.Float64frombits(h.duty.Load())
}

// LastUpdate returns when the control loop last set a duty cycle.
func (h *Heater) LastUpdate() time.Time {
	ns := h.updated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ReportTemperature records the current and target temperature seen by the
// control loop.
func (h *Heater) ReportTemperature(current, target float64) {
	h.temp.Store(math.Float64bits(current))
	h.target.Store(math.Float64bits(target))
}

// SetTarget records a new target temperature ahead of the next report.
func (h *Heater) SetTarget(target float64) {
	h.target.Store(math.Float64bits(target))
}

// Temperature returns the last reported current and target temperature.
func (h *Heater) Temperature() (current, target float64) {
	return math.Float64frombits(h.temp.Load()), math.Float64frombits(h.target.Load())
}

// Apply replaces the heater's schedule for the cycle ending at cycleEnd.
// Every window is handed to the output; an OFF window drives 0 at its start.
func (h *Heater) Apply(cycleEnd time.Time, box int, windows []logic.Window, realized float64) error {
	h.mu.Lock()
	h.schedule = append(h.schedule[:0:0], windows...)
	h.cycleEnd = cycleEnd
	h.box = box
	h.realized = realized
	h.mu.Unlock()

	var errs []error
	for _, w := range windows {
		if !w.On() {
			errs = append(errs, h.drive(w.Start, 0))
			continue
		}
		errs = append(errs, h.drive(w.Start, w.Power))
		errs = append(errs, h.drive(w.End, 0))
	}
	return errors.Join(errs...)
}

// Idle clears the schedule and turns the output off if it was driven.
func (h *Heater) Idle(at time.Time) error {
	h.mu.Lock()
	wasOn := h.lastPower > 0 || len(h.schedule) > 0
	h.schedule = nil
	h.cycleEnd = time.Time{}
	h.box = -1
	h.realized = 0
	h.mu.Unlock()

	if !wasOn {
		return nil
	}
	return h.drive(at, 0)
}

// Refresh passes the last requested duty through the current policy again.
// Admission groups call it after changing the active set.
func (h *Heater) Refresh(at time.Time) error {
	power, drive := h.Policy().Pass(h, h.Duty())
	if !drive {
		return nil
	}
	return h.drive(at, power)
}

// Admit records the realized duty of a heater passed through by admission
// control.
func (h *Heater) Admit(realized float64) {
	h.mu.Lock()
	h.realized = realized
	h.mu.Unlock()
}

// State reports the heater's lifecycle state at now.
func (h *Heater) State(now time.Time) State {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.schedule) == 0 || !now.Before(h.cycleEnd) {
		if _, ok := h.policy.(*Admission); ok && h.lastPower > 0 {
			return StateActive
		}
		return StateIdle
	}
	for _, w := range h.schedule {
		if w.On() && w.Contains(now) {
			return StateActive
		}
	}
	return StateAssigned
}

// Snapshot is a point-in-time view of a heater.
type Snapshot struct {
	Name     string
	Duty     float64
	Temp     float64
	Target   float64
	Box      int
	Realized float64
	State    State
	Windows  []logic.Window
}

// Snapshot returns a copy of the heater's state at now.
func (h *Heater) Snapshot(now time.Time) Snapshot {
	temp, target := h.Temperature()
	state := h.State(now)

	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Name:     h.name,
		Duty:     h.Duty(),
		Temp:     temp,
		Target:   target,
		Box:      h.box,
		Realized: h.realized,
		State:    state,
		Windows:  append([]logic.Window(nil), h.schedule...),
	}
}

// WaitForTemperature blocks until the reported temperature is within
// tolerance of the target, the target is cleared, or ctx is done.
func (h *Heater) WaitForTemperature(ctx context.Context, tolerance float64, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		current, target := h.Temperature()
		if target <= 0 || math.Abs(target-current) <= tolerance {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("heater %s: wait for %.1f (at %.1f): %w", h.name, target, current, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (h *Heater) drive(at time.Time, power float64) error {
	h.mu.Lock()
	h.lastPower = power
	h.mu.Unlock()

	if err := h.out.Drive(at, power); err != nil {
		return fmt.Errorf("heater %s: drive %.3f: %w", h.name, power, err)
	}
	return nil
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
