package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/heater-share/internal/group"
)

// PowerMessage is a recorded remote power level.
type PowerMessage struct {
	Heater string
	At     time.Time
	Power  float64
}

// TargetMessage is a recorded temperature target.
type TargetMessage struct {
	Heater string
	Target float64
}

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Cycles contains all cycle reports that were published.
	Cycles []group.Report

	// Payloads contains the JSON payloads of the cycle reports.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	Targets []TargetMessage
	Powers  []PowerMessage

	// PublishError, if set, will be returned by every publish method
	// except PublishSystem.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishCycle records the cycle report.
func (f *FakePublisher) PublishCycle(r group.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatCyclePayload(r)
	if err != nil {
		return err
	}
	f.Cycles = append(f.Cycles, r)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// PublishTarget records the target.
func (f *FakePublisher) PublishTarget(heater string, target float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Targets = append(f.Targets, TargetMessage{Heater: heater, Target: target})
	return nil
}

// PublishPower records the power level.
func (f *FakePublisher) PublishPower(heater string, at time.Time, power float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Powers = append(f.Powers, PowerMessage{Heater: heater, At: at, Power: power})
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// CycleCount returns the number of recorded cycle reports.
func (f *FakePublisher) CycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Cycles)
}

// SystemEventNames returns the recorded system event names in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Cycles = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Targets = nil
	f.Powers = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
