package logic

import (
	"math"
	"math/rand"
	"testing"
)

func boxNames(b Box) []string {
	names := make([]string, len(b.Demands))
	for i, d := range b.Demands {
		names[i] = d.Heater
	}
	return names
}

func TestPartitionSingleBox(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0.5}, {"B", 0.3}}, 1)
	if len(boxes) != 1 {
		t.Fatalf("expected 1 box, got %d", len(boxes))
	}
	got := boxNames(boxes[0])
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("expected [A B], got %v", got)
	}
	if math.Abs(boxes[0].Usage-0.8) > 1e-9 {
		t.Errorf("expected usage 0.8, got %v", boxes[0].Usage)
	}
}

func TestPartitionFullBox(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0.9}, {"B", 0.1}, {"C", 0.1}}, 2)
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}

	first := boxNames(boxes[0])
	if len(first) != 1 || first[0] != "A" {
		t.Errorf("expected A alone in full box, got %v", first)
	}
	second := boxNames(boxes[1])
	if len(second) != 2 || second[0] != "B" || second[1] != "C" {
		t.Errorf("expected [B C] in shared box, got %v", second)
	}
	if math.Abs(boxes[1].Usage-0.2) > 1e-9 {
		t.Errorf("expected shared usage 0.2, got %v", boxes[1].Usage)
	}
}

func TestPartitionLargestFirst(t *testing.T) {
	boxes := Partition([]Demand{{"small", 0.1}, {"big", 0.6}}, 1)
	got := boxNames(boxes[0])
	if len(got) != 2 || got[0] != "big" || got[1] != "small" {
		t.Errorf("expected [big small], got %v", got)
	}
}

func TestPartitionExcludesIdle(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0}, {"B", 0.4}, {"C", -1}}, 2)
	if len(boxes) != 2 {
		t.Fatalf("expected 2 boxes, got %d", len(boxes))
	}
	count := 0
	for _, b := range boxes {
		for _, d := range b.Demands {
			count++
			if d.Heater != "B" {
				t.Errorf("unexpected heater %s placed", d.Heater)
			}
		}
	}
	if count != 1 {
		t.Errorf("expected exactly 1 placed heater, got %d", count)
	}
}

func TestPartitionAllIdle(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0}, {"B", 0}}, 3)
	if len(boxes) != 3 {
		t.Fatalf("expected 3 boxes, got %d", len(boxes))
	}
	for i, b := range boxes {
		if len(b.Demands) != 0 || b.Usage != 0 {
			t.Errorf("box %d: expected empty, got %+v", i, b)
		}
	}
}

func TestPartitionFewerHeatersThanBoxes(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0.2}}, 4)
	if len(boxes) != 4 {
		t.Fatalf("expected 4 boxes, got %d", len(boxes))
	}
}

func TestPartitionZeroBoxes(t *testing.T) {
	if boxes := Partition([]Demand{{"A", 0.5}}, 0); boxes != nil {
		t.Errorf("expected nil for k=0, got %v", boxes)
	}
}

func TestPartitionLeastLoaded(t *testing.T) {
	boxes := Partition([]Demand{{"A", 0.5}, {"B", 0.25}, {"C", 0.25}, {"D", 0.125}, {"E", 0.125}}, 2)
	// total 1.25, target 0.625: nobody gets a box alone.
	// A->0, B->1, C->1 (0.25 < 0.5), D->0 (tie, lowest index), E->1 (0.5 < 0.625)
	want := [][]string{{"A", "D"}, {"B", "C", "E"}}
	for i, b := range boxes {
		got := boxNames(b)
		if len(got) != len(want[i]) {
			t.Fatalf("box %d: expected %v, got %v", i, want[i], got)
		}
		for j := range got {
			if got[j] != want[i][j] {
				t.Errorf("box %d: expected %v, got %v", i, want[i], got)
				break
			}
		}
	}
}

func TestPartitionClampsDuty(t *testing.T) {
	boxes := Partition([]Demand{{"A", 1.7}}, 1)
	if boxes[0].Usage != 1 {
		t.Errorf("expected usage clamped to 1, got %v", boxes[0].Usage)
	}
	if boxes[0].Demands[0].Duty != 1 {
		t.Errorf("expected duty clamped to 1, got %v", boxes[0].Demands[0].Duty)
	}
}

func TestPartitionCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(8)
		k := 1 + rng.Intn(4)
		demands := make([]Demand, n)
		positive := 0
		for i := range demands {
			d := rng.Float64()
			if rng.Intn(4) == 0 {
				d = 0
			}
			if d > 0 {
				positive++
			}
			demands[i] = Demand{Heater: string(rune('A' + i)), Duty: d}
		}

		boxes := partition(demands, k, rng)
		if len(boxes) != k {
			t.Fatalf("iter %d: expected %d boxes, got %d", iter, k, len(boxes))
		}

		seen := make(map[string]int)
		for _, b := range boxes {
			sum := 0.0
			for _, d := range b.Demands {
				seen[d.Heater]++
				sum += d.Duty
			}
			if math.Abs(sum-b.Usage) > 1e-9 {
				t.Errorf("iter %d: usage %v does not match member sum %v", iter, b.Usage, sum)
			}
		}
		if len(seen) != positive {
			t.Errorf("iter %d: expected %d placed heaters, got %d", iter, positive, len(seen))
		}
		for name, c := range seen {
			if c != 1 {
				t.Errorf("iter %d: heater %s placed %d times", iter, name, c)
			}
		}
	}
}
