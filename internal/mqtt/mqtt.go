// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/door-dictator/internal/logic"
)

// Default topics for controller output.
const (
	TopicState      = "door-dictator/state"
	TopicTranscript = "door-dictator/transcript"
	TopicSystem     = "door-dictator/system"
)

// Publisher publishes controller output to MQTT.
type Publisher interface {
	// PublishState sends a state transition.
	// Returns error if publishing fails (should not crash the process).
	PublishState(event StateEvent) error

	// PublishTranscript sends flushed dictation text.
	PublishTranscript(t Transcript) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateEvent is a change of controller state caused by an input event.
type StateEvent struct {
	Timestamp time.Time
	Cause     logic.EventKind
	State     logic.Snapshot
}

// Transcript is dictation text flushed from the buffer.
type Transcript struct {
	Timestamp time.Time
	Session   string
	Text      string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload represents the MQTT message payload for a state transition.
type StatePayload struct {
	Door DoorPayload `json:"door"`
}

// DoorPayload contains the transition details.
type DoorPayload struct {
	Timestamp  string `json:"timestamp"`
	Cause      string `json:"cause"`
	Door       string `json:"door"`
	Dictation  string `json:"dictation"`
	Actuator   string `json:"actuator"`
	Recognizer string `json:"recognizer"`
	Session    string `json:"session,omitempty"`
}

// FormatStatePayload creates the JSON payload for a state transition.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	payload := StatePayload{
		Door: DoorPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Cause:      string(event.Cause),
			Door:       string(event.State.Door),
			Dictation:  string(event.State.Dictation),
			Actuator:   string(event.State.Actuator),
			Recognizer: string(event.State.Recognizer),
			Session:    event.State.Session,
		},
	}
	return json.Marshal(payload)
}

// TranscriptPayload represents the MQTT message payload for a transcript.
type TranscriptPayload struct {
	Transcript TranscriptInner `json:"transcript"`
}

// TranscriptInner contains the transcript details.
type TranscriptInner struct {
	Timestamp string `json:"timestamp"`
	Session   string `json:"session,omitempty"`
	Text      string `json:"text"`
}

// FormatTranscriptPayload creates the JSON payload for a transcript.
func FormatTranscriptPayload(t Transcript) ([]byte, error) {
	return json.Marshal(TranscriptPayload{
		Transcript: TranscriptInner{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Session:   t.Session,
			Text:      t.Text,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
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
