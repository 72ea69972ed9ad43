// Package status provides a thread-safe view of the heater-share daemon
// for the HTTP server and lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/heater-share/internal/group"
	"github.com/sweeney/heater-share/internal/heater"
)

// Config contains daemon configuration for display.
type Config struct {
	ConfigPath  string
	Broker      string
	TopicPrefix string
	HTTPAddr    string
	HeartbeatMs int64
}

// GroupStatus is one group's configuration, last cycle and members.
type GroupStatus struct {
	Name       string
	Config     group.Config
	Report     group.Report
	Cycles     int
	Degenerate int
	Heaters    []heater.Snapshot
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
	Groups        []GroupStatus
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Group returns the named group's status.
func (s Snapshot) Group(name string) (GroupStatus, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return GroupStatus{}, false
}

// Tracker holds daemon state behind an RWMutex. Group state is read from
// the registry on every Snapshot.
type Tracker struct {
	registry *group.Registry

	mu         sync.RWMutex
	startTime  time.Time
	cfg        Config
	connected  bool
	degenerate map[string]int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config, registry *group.Registry) *Tracker {
	return &Tracker{
		registry:   registry,
		startTime:  startTime,
		cfg:        cfg,
		degenerate: make(map[string]int),
	}
}

// CycleComplete counts degenerate cycles per group. It is registered as a
// group observer.
func (t *Tracker) CycleComplete(r group.Report) {
	if len(r.Warnings) == 0 {
		return
	}
	t.mu.Lock()
	t.degenerate[r.Group]++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	return t.SnapshotAt(time.Now())
}

// SnapshotAt is Snapshot with an explicit clock.
func (t *Tracker) SnapshotAt(now time.Time) Snapshot {
	t.mu.RLock()
	s := Snapshot{
		StartTime:     t.startTime,
		Now:           now,
		MQTTConnected: t.connected,
		Config:        t.cfg,
	}
	degenerate := make(map[string]int, len(t.degenerate))
	for k, v := range t.degenerate {
		degenerate[k] = v
	}
	t.mu.RUnlock()

	if t.registry == nil {
		return s
	}
	for _, g := range t.registry.Groups() {
		gs := GroupStatus{
			Name:       g.Name(),
			Config:     g.Config(),
			Report:     g.LastReport(),
			Cycles:     g.Cycles(),
			Degenerate: degenerate[g.Name()],
		}
		for _, h := range g.Heaters() {
			gs.Heaters = append(gs.Heaters, h.Snapshot(now))
		}
		s.Groups = append(s.Groups, gs)
	}
	return s
}
