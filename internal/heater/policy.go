package heater

import "github.com/sweeney/heater-share/internal/logic"

// Policy decides what happens to power requested by a heater's control loop.
// It returns the power to drive now, or drive=false to leave the output to
// the group's cycle schedule.
type Policy interface {
	Pass(h *Heater, value float64) (power float64, drive bool)
}

// Direct passes requested power straight to the output. Heaters outside any
// group use it.
type Direct struct{}

func (Direct) Pass(_ *Heater, value float64) (float64, bool) {
	return value, true
}

// TimeSliced ignores requested power; the group's schedule drives the
// output once per cycle from the recorded duty.
type TimeSliced struct {
	Group string
}

func (TimeSliced) Pass(*Heater, float64) (float64, bool) {
	return 0, false
}

// Admission passes requested power only while the heater holds one of the
// group's active slots.
type Admission struct {
	Group string
	Gate  *logic.Gate
}

func (a *Admission) Pass(h *Heater, value float64) (float64, bool) {
	return a.Gate.Allow(h.Name(), value), true
}
