// Package logic contains the pure allocation core for shared heater groups.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"math/rand"
	"time"
)

// Demand is one heater's requested duty cycle, sampled once per cycle.
type Demand struct {
	Heater string
	Duty   float64 // clamped to [0,1]
}

// Box is a transient set of heaters sharing one sequential slot allocation.
type Box struct {
	Demands []Demand
	Usage   float64 // sum of member duties
}

// Window is a single ON interval for a heater within a cycle.
// Start is inclusive, End is exclusive.
type Window struct {
	Start time.Time
	End   time.Time
	Power float64
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// On reports whether the window drives any power.
func (w Window) On() bool {
	return w.Power > 0 && w.End.After(w.Start)
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Entry is the schedule for one heater in one cycle.
type Entry struct {
	Heater   string
	Box      int
	Window   Window
	Realized float64 // ON duration * power / cycle
}

// Params controls a single scheduling pass.
type Params struct {
	Cycle       time.Duration
	MaxActive   int
	SwitchDelay time.Duration
	MinOnTime   time.Duration

	// Rand, if set, shuffles demands before the largest-first sort so
	// heaters with equal duty do not always land in the same slot order.
	Rand *rand.Rand
}

// Plan is the complete schedule for one cycle.
type Plan struct {
	Start    time.Time
	Next     time.Time
	Boxes    []Box
	Entries  []Entry
	Warnings []error
}

// Entry returns the entry for the named heater, if scheduled.
func (p Plan) Entry(heater string) (Entry, bool) {
	for _, e := range p.Entries {
		if e.Heater == heater {
			return e, true
		}
	}
	return Entry{}, false
}

// DegenerateCycleError reports a box whose switching overhead does not fit
// in the cycle. The box is still scheduled using its unscaled duty cycles.
type DegenerateCycleError struct {
	Box      int
	Heaters  int
	Cycle    time.Duration
	Overhead time.Duration
}

func (e *DegenerateCycleError) Error() string {
	return fmt.Sprintf("box %d: cycle %v too small for %d heaters (switching overhead %v)",
		e.Box, e.Cycle, e.Heaters, e.Overhead)
}

func clampDuty(d float64) float64 {
	if d != d || d <= 0 { // NaN or non-positive
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
