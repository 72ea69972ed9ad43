// Package group schedules power for sets of heaters that share a supply.
package group

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sweeney/heater-share/internal/heater"
	"github.com/sweeney/heater-share/internal/logic"
)

// Group is a named set of heaters of which at most MaxActive may be powered
// at any instant.
type Group struct {
	name string

	mu         sync.Mutex
	cfg        Config
	heaters    []*heater.Heater
	gate       *logic.Gate
	rng        *rand.Rand
	observers  []Observer
	setter     TargetSetter
	last       Report
	cycles     int
	degenerate bool
}

// New creates an empty group.
func New(name string, cfg Config) *Group {
	return &Group{
		name: name,
		cfg:  cfg,
		gate: logic.NewGate(),
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the group name.
func (g *Group) Name() string {
	return g.name
}

// Config returns a copy of the current configuration, with Heaters set to
// the registered members.
func (g *Group) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	cfg := g.cfg
	cfg.Heaters = make([]string, len(g.heaters))
	for i, h := range g.heaters {
		cfg.Heaters[i] = h.Name()
	}
	return cfg
}

// Heaters returns the members in registration order.
func (g *Group) Heaters() []*heater.Heater {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*heater.Heater(nil), g.heaters...)
}

// Register adds h to the group and hands its output over to the group.
func (g *Group) Register(h *heater.Heater) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heaters = append(g.heaters, h)
	h.SetPolicy(g.policyLocked())
}

// Unregister removes h and returns its output to direct control.
func (g *Group) Unregister(h *heater.Heater) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.heaters {
		if m == h {
			g.heaters = append(g.heaters[:i], g.heaters[i+1:]...)
			h.SetPolicy(heater.Direct{})
			return
		}
	}
}

func (g *Group) policyLocked() heater.Policy {
	if g.cfg.Mode == ModeAdmission {
		return &heater.Admission{Group: g.name, Gate: g.gate}
	}
	return heater.TimeSliced{Group: g.name}
}

// Validate checks that the group has enough members for its limit.
func (g *Group) Validate() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.cfg.Validate(); err != nil {
		return err
	}
	if g.cfg.MaxActive > len(g.heaters) {
		return fmt.Errorf("%w: max_active %d, heaters %d", ErrTooFewHeaters, g.cfg.MaxActive, len(g.heaters))
	}
	return nil
}

// SetCycleTime changes the cycle length from the next cycle on.
func (g *Group) SetCycleTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: cycle_time must be > 0, got %v", ErrInvalidConfig, d)
	}
	g.mu.Lock()
	g.cfg.CycleTime = d
	g.mu.Unlock()
	return nil
}

// SetMaxActive changes the concurrency limit from the next cycle on.
// The limit cannot exceed the number of registered heaters.
func (g *Group) SetMaxActive(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: max_active must be >= 1, got %d", ErrInvalidConfig, k)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if k > len(g.heaters) {
		return fmt.Errorf("%w: max_active %d, heaters %d", ErrTooFewHeaters, k, len(g.heaters))
	}
	g.cfg.MaxActive = k
	return nil
}

// SetBed marks the group as a bed, enabling the bed temperature commands.
func (g *Group) SetBed(bed bool) {
	g.mu.Lock()
	g.cfg.IsBed = bed
	g.mu.Unlock()
}

// Reconfigure applies cfg in place. Membership is not changed.
func (g *Group) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	modeChanged := cfg.Mode != g.cfg.Mode
	cfg.Heaters = g.cfg.Heaters
	g.cfg = cfg
	if modeChanged {
		p := g.policyLocked()
		for _, h := range g.heaters {
			h.SetPolicy(p)
		}
	}
	return nil
}

// SetRand replaces the random source used by the shuffle policy.
func (g *Group) SetRand(r *rand.Rand) {
	g.mu.Lock()
	g.rng = r
	g.mu.Unlock()
}

// AddObserver registers o to receive a report after every cycle.
func (g *Group) AddObserver(o Observer) {
	g.mu.Lock()
	g.observers = append(g.observers, o)
	g.mu.Unlock()
}

// LastReport returns the report of the most recent cycle.
func (g *Group) LastReport() Report {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Cycles returns the number of completed cycles.
func (g *Group) Cycles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cycles
}

// Tick runs one cycle starting at now and returns the next wake time.
// It is registered with the reactor and never fails: output errors are
// logged and the next cycle proceeds.
func (g *Group) Tick(now time.Time) time.Time {
	started := time.Now()

	g.mu.Lock()
	cfg := g.cfg
	members := append([]*heater.Heater(nil), g.heaters...)
	var rng *rand.Rand
	if cfg.Shuffle {
		rng = g.rng
	}
	g.mu.Unlock()

	var report Report
	if cfg.Mode == ModeAdmission {
		report = g.admit(now, cfg, members, rng)
	} else {
		report = g.slice(now, cfg, members, rng)
	}
	report.Elapsed = time.Since(started)

	g.mu.Lock()
	g.last = report
	g.cycles++
	observers := append([]Observer(nil), g.observers...)
	g.mu.Unlock()

	for _, o := range observers {
		o.CycleComplete(report)
	}
	return report.Next
}

func (g *Group) slice(now time.Time, cfg Config, members []*heater.Heater, rng *rand.Rand) Report {
	// One snapshot of every duty cycle for the whole cycle.
	demands := make([]logic.Demand, len(members))
	for i, h := range members {
		demands[i] = logic.Demand{Heater: h.Name(), Duty: h.Duty()}
	}

	plan := logic.Schedule(now, demands, logic.Params{
		Cycle:       cfg.CycleTime,
		MaxActive:   cfg.MaxActive,
		SwitchDelay: cfg.SwitchDelay,
		MinOnTime:   cfg.MinOnTime,
		Rand:        rng,
	})
	g.logWarnings(plan.Warnings)

	report := Report{
		Group:     g.name,
		Mode:      cfg.Mode,
		Start:     plan.Start,
		Next:      plan.Next,
		Cycle:     cfg.CycleTime,
		MaxActive: cfg.MaxActive,
	}
	for i, b := range plan.Boxes {
		br := BoxReport{Index: i, Usage: b.Usage}
		for _, d := range b.Demands {
			br.Heaters = append(br.Heaters, d.Heater)
		}
		report.Boxes = append(report.Boxes, br)
	}
	for _, w := range plan.Warnings {
		report.Warnings = append(report.Warnings, w.Error())
	}

	entries := make(map[string]logic.Entry, len(plan.Entries))
	for _, e := range plan.Entries {
		entries[e.Heater] = e
	}
	for i, h := range members {
		hr := HeaterReport{Name: h.Name(), Duty: demands[i].Duty, Box: -1}
		e, ok := entries[h.Name()]
		var err error
		if ok {
			err = h.Apply(plan.Next, e.Box, []logic.Window{e.Window}, e.Realized)
			hr.Box = e.Box
			hr.Start = e.Window.Start
			hr.End = e.Window.End
			hr.Power = e.Window.Power
			hr.Realized = e.Realized
			hr.Active = e.Window.On()
		} else {
			err = h.Idle(now)
		}
		if err != nil {
			log.Printf("group %s: %v", g.name, err)
		}
		report.Heaters = append(report.Heaters, hr)
	}
	return report
}

func (g *Group) admit(now time.Time, cfg Config, members []*heater.Heater, rng *rand.Rand) Report {
	cands := make([]logic.Candidate, len(members))
	for i, h := range members {
		cur, target := h.Temperature()
		cands[i] = logic.Candidate{Heater: h.Name(), Target: target, Current: cur}
	}
	active := g.gate.Select(now, cands, cfg.MaxActive, rng)
	isActive := make(map[string]bool, len(active))
	for _, name := range active {
		isActive[name] = true
	}

	report := Report{
		Group:     g.name,
		Mode:      cfg.Mode,
		Start:     now,
		Next:      now.Add(cfg.CycleTime),
		Cycle:     cfg.CycleTime,
		MaxActive: cfg.MaxActive,
	}
	report.Heaters = make([]HeaterReport, len(members))
	for i, h := range members {
		duty := h.Duty()
		hr := HeaterReport{Name: h.Name(), Duty: duty, Box: -1}
		if isActive[h.Name()] {
			hr.Active = duty > 0
			hr.Start = now
			hr.End = report.Next
			hr.Power = duty
			hr.Realized = duty
		}
		report.Heaters[i] = hr
	}

	// Suppressed heaters are switched off before admitted ones are switched
	// on, so the limit holds at the handover.
	for _, on := range []bool{false, true} {
		for i, h := range members {
			if isActive[h.Name()] != on {
				continue
			}
			h.Admit(report.Heaters[i].Realized)
			if err := h.Refresh(now); err != nil {
				log.Printf("group %s: %v", g.name, err)
			}
		}
	}
	return report
}

// logWarnings logs degenerate cycles once per transition so a persistently
// undersized cycle does not flood the log every tick.
func (g *Group) logWarnings(warnings []error) {
	g.mu.Lock()
	was := g.degenerate
	g.degenerate = len(warnings) > 0
	g.mu.Unlock()

	if len(warnings) > 0 && !was {
		log.Printf("group %s: cycle too short, using unscaled duty: %v", g.name, errors.Join(warnings...))
	}
	if len(warnings) == 0 && was {
		log.Printf("group %s: cycle scaling restored", g.name)
	}
}
