package logic

import (
	"math"
	"time"
)

// Schedule partitions demands into p.MaxActive boxes and lays out each
// box's heaters as sequential ON windows starting at start.
//
// Each box of n heaters loses n switching delays per cycle (the schedule
// repeats, so the last heater also needs to settle before the first one of
// the next cycle). Power is scaled up so every heater still averages its
// requested duty over the full cycle, capped at 1.
//
// The returned plan always has Next = start + p.Cycle.
func Schedule(start time.Time, demands []Demand, p Params) Plan {
	plan := Plan{
		Start: start,
		Next:  start.Add(p.Cycle),
	}
	if p.Cycle <= 0 || p.MaxActive < 1 {
		return plan
	}

	plan.Boxes = partition(demands, p.MaxActive, p.Rand)
	cycle := p.Cycle.Seconds()

	for i, box := range plan.Boxes {
		if box.Usage <= 0 {
			continue
		}

		n := len(box.Demands)
		overhead := time.Duration(n) * p.SwitchDelay
		span := (p.Cycle - overhead).Seconds()
		gap := p.SwitchDelay
		var scale float64

		if span > 0 {
			scale = box.Usage * cycle / span
		} else {
			plan.Warnings = append(plan.Warnings, &DegenerateCycleError{
				Box:      i,
				Heaters:  n,
				Cycle:    p.Cycle,
				Overhead: overhead,
			})
			scale = box.Usage
			span = cycle
			gap = 0
		}
		power := math.Min(scale, 1)

		cursor := start
		for _, d := range box.Demands {
			slot := time.Duration(d.Duty / box.Usage * span * float64(time.Second))
			if slot <= 0 || (p.MinOnTime > 0 && slot < p.MinOnTime) {
				// Explicit OFF so every member has a defined state this cycle.
				plan.Entries = append(plan.Entries, Entry{
					Heater: d.Heater,
					Box:    i,
					Window: Window{Start: cursor, End: cursor},
				})
				continue
			}

			w := Window{Start: cursor, End: cursor.Add(slot), Power: power}
			plan.Entries = append(plan.Entries, Entry{
				Heater:   d.Heater,
				Box:      i,
				Window:   w,
				Realized: slot.Seconds() * power / cycle,
			})
			cursor = w.End.Add(gap)
		}
	}

	return plan
}

// ActiveAt returns the number of heaters driven with non-zero power at t.
func (p Plan) ActiveAt(t time.Time) int {
	n := 0
	for _, e := range p.Entries {
		if e.Window.On() && e.Window.Contains(t) {
			n++
		}
	}
	return n
}
