package logic

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"
)

var cycleStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func defaultParams(k int) Params {
	return Params{
		Cycle:       time.Second,
		MaxActive:   k,
		SwitchDelay: 20 * time.Millisecond,
	}
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestScheduleSharedBox(t *testing.T) {
	plan := Schedule(cycleStart, []Demand{{"A", 0.5}, {"B", 0.3}}, defaultParams(1))

	if len(plan.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(plan.Entries))
	}
	if len(plan.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", plan.Warnings)
	}

	a, _ := plan.Entry("A")
	b, _ := plan.Entry("B")

	// available = 1s - 2*20ms = 960ms
	if !a.Window.Start.Equal(cycleStart) {
		t.Errorf("A: expected start at cycle start, got %v", a.Window.Start)
	}
	if !approx(a.Window.Duration().Seconds(), 0.5/0.8*0.96, 1e-6) {
		t.Errorf("A: expected window %.3fs, got %v", 0.5/0.8*0.96, a.Window.Duration())
	}
	if !approx(b.Window.Duration().Seconds(), 0.3/0.8*0.96, 1e-6) {
		t.Errorf("B: expected window %.3fs, got %v", 0.3/0.8*0.96, b.Window.Duration())
	}
	wantPower := 0.8 / 0.96
	if !approx(a.Window.Power, wantPower, 1e-9) || !approx(b.Window.Power, wantPower, 1e-9) {
		t.Errorf("expected power %v, got A=%v B=%v", wantPower, a.Window.Power, b.Window.Power)
	}
	if gap := b.Window.Start.Sub(a.Window.End); gap != 20*time.Millisecond {
		t.Errorf("expected 20ms switching gap, got %v", gap)
	}
	if !approx(a.Realized, 0.5, 1e-3) {
		t.Errorf("A: expected realized 0.5, got %v", a.Realized)
	}
	if !approx(b.Realized, 0.3, 1e-3) {
		t.Errorf("B: expected realized 0.3, got %v", b.Realized)
	}
}

func TestScheduleFullBoxGetsOwnSlot(t *testing.T) {
	plan := Schedule(cycleStart, []Demand{{"A", 0.9}, {"B", 0.1}, {"C", 0.1}}, defaultParams(2))

	a, _ := plan.Entry("A")
	b, _ := plan.Entry("B")
	c, _ := plan.Entry("C")

	if a.Box == b.Box {
		t.Errorf("expected A in its own box, A=%d B=%d", a.Box, b.Box)
	}
	if b.Box != c.Box {
		t.Errorf("expected B and C to share a box, B=%d C=%d", b.Box, c.Box)
	}
	// A and B both start at the cycle start, in separate boxes.
	if !a.Window.Start.Equal(cycleStart) || !b.Window.Start.Equal(cycleStart) {
		t.Errorf("expected both box heads to start at cycle start")
	}
	for _, e := range plan.Entries {
		if !approx(e.Realized, map[string]float64{"A": 0.9, "B": 0.1, "C": 0.1}[e.Heater], 1e-3) {
			t.Errorf("%s: unexpected realized duty %v", e.Heater, e.Realized)
		}
	}
}

func TestScheduleAllIdle(t *testing.T) {
	plan := Schedule(cycleStart, []Demand{{"A", 0}, {"B", 0}}, defaultParams(2))

	if len(plan.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(plan.Entries))
	}
	if len(plan.Boxes) != 2 {
		t.Errorf("expected 2 boxes, got %d", len(plan.Boxes))
	}
	if !plan.Next.Equal(cycleStart.Add(time.Second)) {
		t.Errorf("expected next wake %v, got %v", cycleStart.Add(time.Second), plan.Next)
	}
}

func TestScheduleSaturatedBoxes(t *testing.T) {
	plan := Schedule(cycleStart, []Demand{{"A", 1}, {"B", 1}, {"C", 1}}, defaultParams(3))

	if len(plan.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(plan.Entries))
	}
	for _, e := range plan.Entries {
		if e.Window.Power != 1 {
			t.Errorf("%s: expected full power, got %v", e.Heater, e.Window.Power)
		}
		if d := e.Window.Duration() - 980*time.Millisecond; d < -time.Microsecond || d > time.Microsecond {
			t.Errorf("%s: expected 980ms window, got %v", e.Heater, e.Window.Duration())
		}
		if !e.Window.Start.Equal(cycleStart) {
			t.Errorf("%s: expected start at cycle start", e.Heater)
		}
	}
	if n := plan.ActiveAt(cycleStart.Add(500 * time.Millisecond)); n != 3 {
		t.Errorf("expected 3 heaters active mid-cycle, got %d", n)
	}
}

func TestScheduleDegenerateCycle(t *testing.T) {
	p := Params{
		Cycle:       50 * time.Millisecond,
		MaxActive:   1,
		SwitchDelay: 20 * time.Millisecond,
	}
	plan := Schedule(cycleStart, []Demand{{"A", 0.25}, {"B", 0.25}, {"C", 0.25}}, p)

	if len(plan.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(plan.Warnings))
	}
	var degenerate *DegenerateCycleError
	if !errors.As(plan.Warnings[0], &degenerate) {
		t.Fatalf("expected DegenerateCycleError, got %T", plan.Warnings[0])
	}
	if degenerate.Heaters != 3 || degenerate.Overhead != 60*time.Millisecond {
		t.Errorf("unexpected warning details: %+v", degenerate)
	}

	if len(plan.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(plan.Entries))
	}
	// Unscaled: power = usage, windows fill the cycle back to back.
	for i, e := range plan.Entries {
		if !approx(e.Window.Power, 0.75, 1e-9) {
			t.Errorf("%s: expected power 0.75, got %v", e.Heater, e.Window.Power)
		}
		if i > 0 && !e.Window.Start.Equal(plan.Entries[i-1].Window.End) {
			t.Errorf("%s: expected window to follow previous without gap", e.Heater)
		}
		if !approx(e.Realized, 0.25, 1e-3) {
			t.Errorf("%s: expected realized 0.25, got %v", e.Heater, e.Realized)
		}
	}
}

func TestScheduleMinOnTimeEmitsOff(t *testing.T) {
	p := defaultParams(1)
	p.MinOnTime = 10 * time.Millisecond
	plan := Schedule(cycleStart, []Demand{{"A", 0.9}, {"B", 0.001}}, p)

	b, ok := plan.Entry("B")
	if !ok {
		t.Fatal("expected an entry for B")
	}
	if b.Window.Power != 0 || b.Window.Duration() != 0 {
		t.Errorf("expected explicit OFF entry, got %+v", b.Window)
	}
	if b.Realized != 0 {
		t.Errorf("expected realized 0, got %v", b.Realized)
	}
}

func TestScheduleNoOverlapWithinBox(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := defaultParams(1)
	for iter := 0; iter < 100; iter++ {
		n := 2 + rng.Intn(6)
		demands := make([]Demand, n)
		for i := range demands {
			demands[i] = Demand{Heater: string(rune('A' + i)), Duty: rng.Float64()}
		}
		p.MaxActive = 1 + rng.Intn(3)

		plan := Schedule(cycleStart, demands, p)
		byBox := make(map[int][]Window)
		for _, e := range plan.Entries {
			if e.Window.On() {
				byBox[e.Box] = append(byBox[e.Box], e.Window)
			}
		}
		for box, ws := range byBox {
			sort.Slice(ws, func(i, j int) bool { return ws[i].Start.Before(ws[j].Start) })
			for i := 1; i < len(ws); i++ {
				if gap := ws[i].Start.Sub(ws[i-1].End); gap < p.SwitchDelay {
					t.Errorf("iter %d box %d: gap %v shorter than switching delay", iter, box, gap)
				}
			}
			last := ws[len(ws)-1]
			if last.End.After(plan.Next) {
				t.Errorf("iter %d box %d: window runs past cycle end", iter, box)
			}
		}
	}
}

func TestScheduleCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 100; iter++ {
		k := 1 + rng.Intn(3)
		p := defaultParams(k)
		p.Rand = rng
		demands := make([]Demand, 1+rng.Intn(8))
		for i := range demands {
			demands[i] = Demand{Heater: string(rune('A' + i)), Duty: rng.Float64()}
		}

		plan := Schedule(cycleStart, demands, p)
		for _, e := range plan.Entries {
			if n := plan.ActiveAt(e.Window.Start); n > k {
				t.Fatalf("iter %d: %d heaters active at %v, limit %d", iter, n, e.Window.Start, k)
			}
		}
	}
}

func TestScheduleConservation(t *testing.T) {
	demands := []Demand{{"A", 0.2}, {"B", 0.15}, {"C", 0.3}, {"D", 0.1}}
	plan := Schedule(cycleStart, demands, defaultParams(2))

	for _, d := range demands {
		e, ok := plan.Entry(d.Heater)
		if !ok {
			t.Fatalf("%s: missing entry", d.Heater)
		}
		energy := e.Window.Duration().Seconds() * e.Window.Power
		if !approx(energy, d.Duty, 1e-3) {
			t.Errorf("%s: expected average power %v, got %v", d.Heater, d.Duty, energy)
		}
	}
}

func TestScheduleStableShape(t *testing.T) {
	demands := []Demand{{"A", 0.4}, {"B", 0.2}, {"C", 0.3}}
	p := defaultParams(2)

	first := Schedule(cycleStart, demands, p)
	second := Schedule(first.Next, demands, p)

	for _, e1 := range first.Entries {
		e2, ok := second.Entry(e1.Heater)
		if !ok {
			t.Fatalf("%s: missing in second cycle", e1.Heater)
		}
		off1 := e1.Window.Start.Sub(first.Start)
		off2 := e2.Window.Start.Sub(second.Start)
		if off1 != off2 || e1.Window.Duration() != e2.Window.Duration() || e1.Window.Power != e2.Window.Power {
			t.Errorf("%s: schedule shape changed between cycles", e1.Heater)
		}
	}
}

func TestScheduleInvalidParams(t *testing.T) {
	plan := Schedule(cycleStart, []Demand{{"A", 0.5}}, Params{Cycle: time.Second})
	if len(plan.Entries) != 0 || plan.Boxes != nil {
		t.Errorf("expected empty plan for MaxActive=0, got %+v", plan)
	}
}
