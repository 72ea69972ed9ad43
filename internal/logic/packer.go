package logic

import (
	"math/rand"
	"sort"
)

// Partition splits demands into exactly k boxes, balancing aggregate usage.
//
// Heaters with zero duty are left out. A heater at least as large as the
// current target box size gets a box of its own; the target is then
// recomputed over what is left. The rest fill empty boxes first and then
// go to the least loaded box, ties broken by box index.
func Partition(demands []Demand, k int) []Box {
	return partition(demands, k, nil)
}

func partition(demands []Demand, k int, rng *rand.Rand) []Box {
	if k < 1 {
		return nil
	}

	pending := make([]Demand, 0, len(demands))
	total := 0.0
	for _, d := range demands {
		d.Duty = clampDuty(d.Duty)
		if d.Duty == 0 {
			continue
		}
		pending = append(pending, d)
		total += d.Duty
	}

	if rng != nil {
		rng.Shuffle(len(pending), func(i, j int) {
			pending[i], pending[j] = pending[j], pending[i]
		})
	}
	// Largest first; equal duties keep their (possibly shuffled) order.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Duty > pending[j].Duty
	})

	boxes := make([]Box, 0, k)
	target := total / float64(k)

	var rest []Demand
	for _, d := range pending {
		// Keep at least one box for whatever does not get a box of its own.
		if len(boxes) < k-1 && d.Duty >= target {
			boxes = append(boxes, Box{Demands: []Demand{d}, Usage: d.Duty})
			total -= d.Duty
			if remaining := k - len(boxes); remaining > 0 {
				target = total / float64(remaining)
			}
			continue
		}
		rest = append(rest, d)
	}

	shared := len(boxes)
	for _, d := range rest {
		if len(boxes) < k {
			boxes = append(boxes, Box{Demands: []Demand{d}, Usage: d.Duty})
			continue
		}
		lowest := shared
		for i := shared + 1; i < len(boxes); i++ {
			if boxes[i].Usage < boxes[lowest].Usage {
				lowest = i
			}
		}
		boxes[lowest].Demands = append(boxes[lowest].Demands, d)
		boxes[lowest].Usage += d.Duty
	}

	for len(boxes) < k {
		boxes = append(boxes, Box{})
	}
	return boxes
}
