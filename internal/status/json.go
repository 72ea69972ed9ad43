package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Groups        []GroupJSON `json:"groups"`
	Config        ConfigJSON  `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// GroupJSON is the JSON representation of one group.
type GroupJSON struct {
	Name             string       `json:"name"`
	Mode             string       `json:"mode"`
	CycleMs          int64        `json:"cycle_ms"`
	MaxActive        int          `json:"max_active"`
	SwitchDelayMs    int64        `json:"switching_delay_ms"`
	IsBed            bool         `json:"is_bed"`
	Cycles           int          `json:"cycles"`
	DegenerateCycles int          `json:"degenerate_cycles"`
	Active           int          `json:"active"`
	LastCycle        string       `json:"last_cycle,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	Heaters          []HeaterJSON `json:"heaters"`
}

// HeaterJSON is the JSON representation of one heater.
type HeaterJSON struct {
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Duty     float64 `json:"duty"`
	Realized float64 `json:"realized"`
	Box      int     `json:"box"`
	Temp     float64 `json:"temp"`
	Target   float64 `json:"target"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ConfigPath  string `json:"config_path,omitempty"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPAddr    string `json:"http_addr"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
}

// BuildGroup converts a group status to its JSON form.
func BuildGroup(gs GroupStatus) GroupJSON {
	gj := GroupJSON{
		Name:             gs.Name,
		Mode:             string(gs.Config.Mode),
		CycleMs:          gs.Config.CycleTime.Milliseconds(),
		MaxActive:        gs.Config.MaxActive,
		SwitchDelayMs:    gs.Config.SwitchDelay.Milliseconds(),
		IsBed:            gs.Config.IsBed,
		Cycles:           gs.Cycles,
		DegenerateCycles: gs.Degenerate,
		Active:           gs.Report.Active(),
		Warnings:         gs.Report.Warnings,
		Heaters:          make([]HeaterJSON, 0, len(gs.Heaters)),
	}
	if !gs.Report.Start.IsZero() {
		gj.LastCycle = gs.Report.Start.UTC().Format(time.RFC3339Nano)
	}
	for _, h := range gs.Heaters {
		gj.Heaters = append(gj.Heaters, HeaterJSON{
			Name:     h.Name,
			State:    string(h.State),
			Duty:     h.Duty,
			Realized: h.Realized,
			Box:      h.Box,
			Temp:     h.Temp,
			Target:   h.Target,
		})
	}
	return gj
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Groups:        make([]GroupJSON, 0, len(snap.Groups)),
		Config: ConfigJSON{
			ConfigPath:  snap.Config.ConfigPath,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPAddr:    snap.Config.HTTPAddr,
			HeartbeatMs: snap.Config.HeartbeatMs,
		},
	}
	for _, gs := range snap.Groups {
		inner.Groups = append(inner.Groups, BuildGroup(gs))
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatGroupJSON returns the JSON for a single group.
func FormatGroupJSON(gs GroupStatus) []byte {
	data, _ := json.MarshalIndent(BuildGroup(gs), "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
