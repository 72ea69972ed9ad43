package logic

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Candidate is a heater competing for one of the active slots.
type Candidate struct {
	Heater  string
	Target  float64
	Current float64
}

// Deficit returns how far the heater is below its target temperature.
func (c Candidate) Deficit() float64 {
	return c.Target - c.Current
}

// SelectActive returns up to k heaters with the greatest temperature deficit.
// Heaters with no target (<= 0) are never selected. Ties keep the input
// order unless rng is set, in which case candidates are shuffled first.
func SelectActive(cands []Candidate, k int, rng *rand.Rand) []string {
	if k < 1 {
		return nil
	}

	pool := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Target > 0 {
			pool = append(pool, c)
		}
	}
	if rng != nil {
		rng.Shuffle(len(pool), func(i, j int) {
			pool[i], pool[j] = pool[j], pool[i]
		})
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Deficit() > pool[j].Deficit()
	})

	if len(pool) > k {
		pool = pool[:k]
	}
	active := make([]string, len(pool))
	for i, c := range pool {
		active[i] = c.Heater
	}
	return active
}

// Gate is the shared active set for admission control. Suppressed heaters
// get zero output while their control loop keeps integrating.
type Gate struct {
	mu         sync.Mutex
	active     map[string]bool
	lastSwitch time.Time
}

// NewGate creates a gate with no active heaters.
func NewGate() *Gate {
	return &Gate{active: make(map[string]bool)}
}

// Select recomputes the active set and returns it in selection order.
func (g *Gate) Select(now time.Time, cands []Candidate, k int, rng *rand.Rand) []string {
	active := SelectActive(cands, k, rng)

	g.mu.Lock()
	g.active = make(map[string]bool, len(active))
	for _, name := range active {
		g.active[name] = true
	}
	g.lastSwitch = now
	g.mu.Unlock()

	return active
}

// Allow returns value if the heater is currently active, 0 otherwise.
func (g *Gate) Allow(heater string, value float64) float64 {
	g.mu.Lock()
	ok := g.active[heater]
	g.mu.Unlock()
	if !ok {
		return 0
	}
	return value
}

// Active reports whether the heater is in the active set.
func (g *Gate) Active(heater string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[heater]
}

// LastSwitch returns when the active set was last recomputed.
func (g *Gate) LastSwitch() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastSwitch
}
