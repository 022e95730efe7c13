package recognizer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/door-dictator/internal/logic"
)

// Command verbs sent to the recognizer.
const (
	CommandStart  = "start"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// Event types reported by the recognizer.
const (
	TypeState      = "state"
	TypeHypothesis = "hypothesis"
	TypeResult     = "result"
	TypeCompleted  = "completed"
)

// CommandPayload is the JSON message published to the command topic.
type CommandPayload struct {
	Command   string `json:"command"`
	Session   string `json:"session,omitempty"`
	Timestamp string `json:"timestamp"`
}

// EventPayload is the JSON message the recognizer publishes to the events topic.
type EventPayload struct {
	Session    string `json:"session"`
	Type       string `json:"type"`
	State      string `json:"state,omitempty"`
	Text       string `json:"text,omitempty"`
	Confidence string `json:"confidence,omitempty"`
	Status     string `json:"status,omitempty"`
}

// FormatCommand creates the JSON payload for a session command.
func FormatCommand(command, session string, now time.Time) ([]byte, error) {
	return json.Marshal(CommandPayload{
		Command:   command,
		Session:   session,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// ParseEvent decodes a recognizer event received at now.
func ParseEvent(data []byte, now time.Time) (logic.Event, error) {
	var p EventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return logic.Event{}, fmt.Errorf("decode recognizer event: %w", err)
	}

	ev := logic.Event{Session: p.Session, Time: now}
	switch p.Type {
	case TypeState:
		if p.State == "" {
			return logic.Event{}, fmt.Errorf("state event without state")
		}
		ev.Kind = logic.EventRecognizerState
		ev.State = logic.RecognizerState(p.State)
	case TypeHypothesis:
		ev.Kind = logic.EventHypothesis
		ev.Text = p.Text
	case TypeResult:
		ev.Kind = logic.EventResult
		ev.Text = p.Text
		ev.Confidence = logic.Confidence(p.Confidence)
	case TypeCompleted:
		ev.Kind = logic.EventCompleted
		ev.Status = logic.CompletionStatus(p.Status)
		if ev.Status == "" {
			ev.Status = logic.StatusSuccess
		}
	default:
		return logic.Event{}, fmt.Errorf("unknown recognizer event type %q", p.Type)
	}
	return ev, nil
}
