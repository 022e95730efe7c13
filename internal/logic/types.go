// Package logic contains the pure door/dictation state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via the Event.Time field.
package logic

import "time"

// DoorState is the debounced door position.
type DoorState string

const (
	DoorOpen   DoorState = "OPEN"
	DoorClosed DoorState = "CLOSED"
)

// DictationState tracks the recognition session as seen by the controller.
// Starting and Stopping mark a command whose completion has not been observed yet.
type DictationState string

const (
	DictationIdle     DictationState = "IDLE"
	DictationStarting DictationState = "STARTING"
	DictationRunning  DictationState = "RUNNING"
	DictationStopping DictationState = "STOPPING"
)

// ActuatorState is the state of the dictator pin.
type ActuatorState string

const (
	ActuatorSilent  ActuatorState = "SILENT"
	ActuatorArmed   ActuatorState = "ARMED"
	ActuatorPulsing ActuatorState = "PULSING"
)

// RecognizerState mirrors the state reported by the speech recognizer.
type RecognizerState string

const (
	RecognizerIdle           RecognizerState = "Idle"
	RecognizerCapturing      RecognizerState = "Capturing"
	RecognizerProcessing     RecognizerState = "Processing"
	RecognizerSoundStarted   RecognizerState = "SoundStarted"
	RecognizerSoundEnded     RecognizerState = "SoundEnded"
	RecognizerSpeechDetected RecognizerState = "SpeechDetected"
	RecognizerPaused         RecognizerState = "Paused"
)

// Confidence is the recognizer's confidence in a result.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// CompletionStatus is reported when a recognition session ends on its own.
type CompletionStatus string

const (
	StatusSuccess         CompletionStatus = "Success"
	StatusTimeoutExceeded CompletionStatus = "TimeoutExceeded"
)

// EventKind identifies an input to the controller.
type EventKind string

const (
	EventDoorOpened      EventKind = "DOOR_OPENED"
	EventDoorClosed      EventKind = "DOOR_CLOSED"
	EventSessionStarted  EventKind = "SESSION_STARTED"
	EventSessionStopped  EventKind = "SESSION_STOPPED"
	EventCommandFailed   EventKind = "COMMAND_FAILED"
	EventRecognizerState EventKind = "RECOGNIZER_STATE"
	EventHypothesis      EventKind = "HYPOTHESIS"
	EventResult          EventKind = "RESULT"
	EventCompleted       EventKind = "COMPLETED"
	EventActuatorTimer   EventKind = "ACTUATOR_TIMER"
	EventRetryStart      EventKind = "RETRY_START"
	EventStartRequested  EventKind = "START_REQUESTED"
	EventStopRequested   EventKind = "STOP_REQUESTED"
	EventShutdown        EventKind = "SHUTDOWN"
)

// Event is a single input to the controller. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	Time time.Time

	// Session is the id of the recognition session that produced the event.
	// Empty means "current session".
	Session string

	State      RecognizerState
	Text       string
	Confidence Confidence
	Status     CompletionStatus

	// Command and Err describe a failed session command (EventCommandFailed).
	Command ActionType
	Err     error

	// Seq identifies the timer schedule that fired (EventActuatorTimer).
	Seq uint64
}

// ActionType identifies a side effect the runtime must carry out.
type ActionType string

const (
	ActionStartSession    ActionType = "START_SESSION"
	ActionStopSession     ActionType = "STOP_SESSION"
	ActionCancelSession   ActionType = "CANCEL_SESSION"
	ActionAssertActuator  ActionType = "ASSERT_ACTUATOR"
	ActionReleaseActuator ActionType = "RELEASE_ACTUATOR"
	ActionArmTimer        ActionType = "ARM_TIMER"
	ActionDisarmTimer     ActionType = "DISARM_TIMER"
	ActionScheduleRetry   ActionType = "SCHEDULE_RETRY"
	ActionFlushTranscript ActionType = "FLUSH_TRANSCRIPT"
	ActionDiscardResult   ActionType = "DISCARD_RESULT"
)

// Action is a command produced by the controller.
type Action struct {
	Type ActionType

	// Session identifies the session a command or transcript belongs to.
	Session string

	// Deadline and Seq are set on ActionArmTimer and ActionScheduleRetry.
	Deadline time.Time
	Seq      uint64

	// Text carries the transcript (ActionFlushTranscript) or the
	// truncated discarded text (ActionDiscardResult).
	Text string
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Door       DoorState
	Dictation  DictationState
	Actuator   ActuatorState
	Recognizer RecognizerState
	Speaking   bool
	Paused     bool
	Session    string
	Deadline   time.Time
	BufferLen  int
}

// Counts tracks activity since startup.
type Counts struct {
	DoorOpens     int
	DoorCloses    int
	SessionStarts int
	AutoRestarts  int
	Failures      int
	Pulses        int
	Discarded     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
