// Package mqtt connects heater groups to an MQTT broker: cycle reports and
// lifecycle events out, control loop reports and bed commands in.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/heater-share/internal/group"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "heater-share"

// ErrNotConnected is returned for messages that are not worth replaying
// after a reconnect.
var ErrNotConnected = errors.New("not connected")

// Topics builds topic names under a common prefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// Cycles is where per-cycle reports are published.
func (t Topics) Cycles() string { return t.prefix() + "/cycles" }

// System is where lifecycle events are published.
func (t Topics) System() string { return t.prefix() + "/system" }

// HeaterReport is where a heater's control loop publishes duty and temperature.
func (t Topics) HeaterReport(name string) string { return t.prefix() + "/heaters/" + name + "/report" }

// HeaterTarget is where new temperature targets are sent to a control loop.
func (t Topics) HeaterTarget(name string) string { return t.prefix() + "/heaters/" + name + "/target" }

// HeaterPower is where power levels for remote heater outputs are sent.
func (t Topics) HeaterPower(name string) string { return t.prefix() + "/heaters/" + name + "/power" }

// GroupCommand is where bed commands for a group arrive.
func (t Topics) GroupCommand(name string) string { return t.prefix() + "/groups/" + name + "/command" }

// ReportFilter matches every heater report topic.
func (t Topics) ReportFilter() string { return t.HeaterReport("+") }

// CommandFilter matches every group command topic.
func (t Topics) CommandFilter() string { return t.GroupCommand("+") }

// Publisher publishes scheduler output to MQTT.
type Publisher interface {
	// PublishCycle sends a group's cycle report.
	// Returns error if publishing fails (should not crash the process).
	PublishCycle(r group.Report) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// PublishTarget sends a temperature target to a heater's control loop.
	PublishTarget(heater string, target float64) error

	// PublishPower sends a power level to a remote heater output.
	PublishPower(heater string, at time.Time, power float64) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// CyclePayload is the message published after every group cycle.
type CyclePayload struct {
	Cycle CycleInner `json:"cycle"`
}

// CycleInner contains the cycle details. Window offsets are milliseconds
// from the cycle start.
type CycleInner struct {
	Group     string       `json:"group"`
	Mode      string       `json:"mode"`
	Timestamp string       `json:"timestamp"`
	CycleMs   int64        `json:"cycle_ms"`
	MaxActive int          `json:"max_active"`
	Active    int          `json:"active"`
	Boxes     []BoxJSON    `json:"boxes"`
	Heaters   []HeaterJSON `json:"heaters"`
	Warnings  []string     `json:"warnings,omitempty"`
}

// BoxJSON is one bin of the cycle's partition.
type BoxJSON struct {
	Usage   float64  `json:"usage"`
	Heaters []string `json:"heaters"`
}

// HeaterJSON is one heater's slot in the cycle.
type HeaterJSON struct {
	Name     string  `json:"name"`
	Duty     float64 `json:"duty"`
	Box      int     `json:"box"`
	StartMs  float64 `json:"start_ms"`
	EndMs    float64 `json:"end_ms"`
	Power    float64 `json:"power"`
	Realized float64 `json:"realized"`
	Active   bool    `json:"active"`
}

// FormatCyclePayload creates the JSON payload for a cycle report.
func FormatCyclePayload(r group.Report) ([]byte, error) {
	inner := CycleInner{
		Group:     r.Group,
		Mode:      string(r.Mode),
		Timestamp: r.Start.UTC().Format(time.RFC3339Nano),
		CycleMs:   r.Cycle.Milliseconds(),
		MaxActive: r.MaxActive,
		Active:    r.Active(),
		Boxes:     make([]BoxJSON, 0, len(r.Boxes)),
		Heaters:   make([]HeaterJSON, 0, len(r.Heaters)),
		Warnings:  r.Warnings,
	}
	for _, b := range r.Boxes {
		inner.Boxes = append(inner.Boxes, BoxJSON{Usage: b.Usage, Heaters: b.Heaters})
	}
	for _, h := range r.Heaters {
		hj := HeaterJSON{
			Name:     h.Name,
			Duty:     h.Duty,
			Box:      h.Box,
			Power:    h.Power,
			Realized: h.Realized,
			Active:   h.Active,
		}
		if !h.Start.IsZero() {
			hj.StartMs = offsetMs(r.Start, h.Start)
			hj.EndMs = offsetMs(r.Start, h.End)
		}
		inner.Heaters = append(inner.Heaters, hj)
	}
	return json.Marshal(CyclePayload{Cycle: inner})
}

func offsetMs(start, t time.Time) float64 {
	return float64(t.Sub(start)) / float64(time.Millisecond)
}

// SystemPayload is the message payload for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// TargetPayload is sent to a heater's control loop by bed commands.
type TargetPayload struct {
	Target float64 `json:"target"`
}

// PowerPayload drives a remote heater output.
type PowerPayload struct {
	At    string  `json:"at"`
	Power float64 `json:"power"`
}

// FormatPowerPayload creates the JSON payload for a remote power level.
func FormatPowerPayload(at time.Time, power float64) ([]byte, error) {
	return json.Marshal(PowerPayload{At: at.UTC().Format(time.RFC3339Nano), Power: power})
}

// HeaterReport is what a control loop publishes. Absent fields are left
// unchanged on the heater.
type HeaterReport struct {
	Duty   *float64 `json:"duty"`
	Temp   *float64 `json:"temp"`
	Target *float64 `json:"target"`
}

// ParseReport decodes a heater report.
func ParseReport(payload []byte) (HeaterReport, error) {
	var r HeaterReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return HeaterReport{}, fmt.Errorf("parse report: %w", err)
	}
	if r.Duty == nil && r.Temp == nil && r.Target == nil {
		return HeaterReport{}, fmt.Errorf("parse report: no duty, temp or target")
	}
	return r, nil
}

// Command is a bed command addressed to a group.
type Command struct {
	Command string  `json:"command"`
	Temp    float64 `json:"temp"`
}

// ParseCommand decodes a group command.
func ParseCommand(payload []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(payload, &c); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	if c.Command == "" {
		return Command{}, fmt.Errorf("parse command: missing command")
	}
	return c, nil
}
