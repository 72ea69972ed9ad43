package gpio

import (
	"sort"
	"sync"
	"time"
)

// Command is a single recorded Drive call.
type Command struct {
	At    time.Time
	Power float64
}

// FakeOutput is a test double that records Drive calls.
type FakeOutput struct {
	mu sync.Mutex

	// Commands contains every Drive call in call order.
	Commands []Command

	// DriveError, if set, will be returned by Drive.
	DriveError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates an empty FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Drive records the command.
func (f *FakeOutput) Drive(at time.Time, power float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DriveError != nil {
		return f.DriveError
	}
	f.Commands = append(f.Commands, Command{At: at, Power: power})
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Recorded returns a copy of the recorded commands.
func (f *FakeOutput) Recorded() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}

// LevelAt returns the power level in effect at t: the latest command
// scheduled at or before t, later calls winning ties.
func (f *FakeOutput) LevelAt(t time.Time) float64 {
	cmds := f.Recorded()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].At.Before(cmds[j].At) })

	level := 0.0
	for _, c := range cmds {
		if c.At.After(t) {
			break
		}
		level = c.Power
	}
	return level
}

// Reset clears recorded commands.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	f.Commands = nil
	f.DriveError = nil
	f.Closed = false
	f.mu.Unlock()
}
