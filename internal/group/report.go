package group

import "time"

// Report describes one completed cycle of a group.
type Report struct {
	Group     string
	Mode      Mode
	Start     time.Time
	Next      time.Time
	Cycle     time.Duration
	MaxActive int
	Boxes     []BoxReport
	Heaters   []HeaterReport
	Warnings  []string
	Elapsed   time.Duration
}

// BoxReport describes one box of a time-sliced cycle.
type BoxReport struct {
	Index   int
	Usage   float64
	Heaters []string
}

// HeaterReport describes one heater's allocation for a cycle.
type HeaterReport struct {
	Name     string
	Duty     float64
	Box      int // -1 when not placed
	Start    time.Time
	End      time.Time
	Power    float64
	Realized float64
	Active   bool
}

// Active returns the number of heaters that receive power this cycle.
func (r Report) Active() int {
	n := 0
	for _, h := range r.Heaters {
		if h.Active {
			n++
		}
	}
	return n
}

// Observer is notified after every cycle. It runs on the timer goroutine
// and must not block.
type Observer interface {
	CycleComplete(Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Report)

func (f ObserverFunc) CycleComplete(r Report) {
	f(r)
}
