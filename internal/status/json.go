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
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	Door           string       `json:"door"`
	Dictation      string       `json:"dictation"`
	Actuator       string       `json:"actuator"`
	Recognizer     string       `json:"recognizer"`
	Session        string       `json:"session,omitempty"`
	Paused         bool         `json:"paused"`
	PulseAt        string       `json:"pulse_at,omitempty"`
	Ready          bool         `json:"ready"`
	LastTranscript string       `json:"last_transcript,omitempty"`
	LastDiscarded  string       `json:"last_discarded,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Counts         CountsJSON   `json:"event_counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	DoorOpens     int `json:"door_opens"`
	DoorCloses    int `json:"door_closes"`
	SessionStarts int `json:"session_starts"`
	AutoRestarts  int `json:"auto_restarts"`
	Failures      int `json:"failures"`
	Pulses        int `json:"pulses"`
	Discarded     int `json:"discarded"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMs      int64  `json:"debounce_ms"`
	PulseIntervalMs int64  `json:"pulse_interval_ms"`
	PulseWidthMs    int64  `json:"pulse_width_ms"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	DoorPin         int    `json:"door_pin"`
	ActuatorPin     int    `json:"actuator_pin"`
	ActiveLow       bool   `json:"actuator_active_low"`
	DryRun          bool   `json:"dry_run"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Door:           orUnknown(string(snap.State.Door)),
		Dictation:      orUnknown(string(snap.State.Dictation)),
		Actuator:       orUnknown(string(snap.State.Actuator)),
		Recognizer:     orUnknown(string(snap.State.Recognizer)),
		Session:        snap.State.Session,
		Paused:         snap.State.Paused,
		Ready:          snap.Ready,
		LastTranscript: snap.LastTranscript,
		LastDiscarded:  snap.LastDiscarded,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			DoorOpens:     snap.Counts.DoorOpens,
			DoorCloses:    snap.Counts.DoorCloses,
			SessionStarts: snap.Counts.SessionStarts,
			AutoRestarts:  snap.Counts.AutoRestarts,
			Failures:      snap.Counts.Failures,
			Pulses:        snap.Counts.Pulses,
			Discarded:     snap.Counts.Discarded,
		},
		Config: ConfigJSON{
			DebounceMs:      snap.Config.DebounceMs,
			PulseIntervalMs: snap.Config.PulseIntervalMs,
			PulseWidthMs:    snap.Config.PulseWidthMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			DoorPin:         snap.Config.DoorPin,
			ActuatorPin:     snap.Config.ActuatorPin,
			ActiveLow:       snap.Config.ActiveLow,
			DryRun:          snap.Config.DryRun,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if !snap.State.Deadline.IsZero() {
		inner.PulseAt = snap.State.Deadline.UTC().Format(time.RFC3339Nano)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
