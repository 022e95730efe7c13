package logic

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DiscardPreviewLen is how many characters of a discarded result are kept for diagnostics.
const DiscardPreviewLen = 25

// Config holds the timing parameters of the controller.
type Config struct {
	// PulseInterval is the delay between SoundEnded and the actuator pulse.
	PulseInterval time.Duration

	// PulseWidth releases the pulse after this long. Zero holds the pulse
	// until speech is detected or the door opens.
	PulseWidth time.Duration

	// StartRetry is the delay before a failed session start is retried.
	// Zero disables the retry; the next door-close edge starts the session.
	StartRetry time.Duration

	// NewSessionID returns the id for the next session. Defaults to a counter.
	NewSessionID func() string
}

// Controller is the door/dictation state machine.
// It is not safe for concurrent use; all events must come from one goroutine.
type Controller struct {
	cfg Config

	door       DoorState
	dictation  DictationState
	actuator   ActuatorState
	recognizer RecognizerState
	speaking   bool
	paused     bool
	shutdown   bool

	// teardownPending is set when termination was requested while a start was in flight.
	teardownPending bool
	retryPending    bool

	// completedPending is set when the recognizer reported the session
	// complete before its start was acknowledged.
	completedPending bool

	session  string
	sessions uint64

	// deadline and seq describe the single outstanding timer schedule.
	deadline time.Time
	seq      uint64

	buffer strings.Builder

	startTime     time.Time
	lastHeartbeat time.Time
	counts        Counts
}

// NewController creates a controller whose door state was read from the sensor level.
// Call Init to obtain the actions for the initial state.
func NewController(cfg Config, door DoorState, startTime time.Time) *Controller {
	return &Controller{
		cfg:           cfg,
		door:          door,
		dictation:     DictationIdle,
		actuator:      ActuatorSilent,
		recognizer:    RecognizerIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Init returns the actions for the initial state: the actuator is forced to
// its inactive level and, when the door is closed, a session is started.
func (c *Controller) Init() []Action {
	acts := []Action{{Type: ActionReleaseActuator}}
	return append(acts, c.maybeStart()...)
}

// Handle applies a single event and returns the actions the caller must carry out, in order.
func (c *Controller) Handle(ev Event) []Action {
	if c.isStale(ev) {
		return nil
	}

	switch ev.Kind {
	case EventDoorOpened, EventStopRequested, EventShutdown:
		c.observe(ev.State)
	}

	switch ev.Kind {
	case EventDoorOpened:
		return c.doorOpened()
	case EventDoorClosed:
		return c.doorClosed()
	case EventSessionStarted:
		return c.sessionStarted()
	case EventSessionStopped:
		return c.sessionStopped()
	case EventCommandFailed:
		return c.commandFailed(ev)
	case EventRecognizerState:
		return c.recognizerState(ev)
	case EventHypothesis:
		c.speaking = true
		return c.silence(false)
	case EventResult:
		return c.result(ev)
	case EventCompleted:
		return c.completed(ev)
	case EventActuatorTimer:
		return c.timerFired(ev)
	case EventRetryStart:
		c.retryPending = false
		return c.maybeStart()
	case EventStartRequested:
		c.paused = false
		return c.maybeStart()
	case EventStopRequested:
		c.paused = true
		return c.teardown()
	case EventShutdown:
		c.shutdown = true
		acts := c.silence(true)
		acts = append(acts, c.flush()...)
		return append(acts, c.teardown()...)
	}
	return nil
}

// isStale reports whether a session event belongs to a session other than the current one.
func (c *Controller) isStale(ev Event) bool {
	if ev.Session == "" {
		return false
	}
	switch ev.Kind {
	case EventSessionStarted, EventSessionStopped, EventCommandFailed,
		EventRecognizerState, EventHypothesis, EventResult, EventCompleted:
		return ev.Session != c.session
	}
	return false
}

// observe records the state the session reported for itself. It decides
// between cancel and stop when the session has not sent a state event yet.
func (c *Controller) observe(s RecognizerState) {
	if s != "" && c.dictation == DictationRunning {
		c.recognizer = s
	}
}

// doorOpened disarms the actuator before touching the session so the pulse
// stops even when session teardown is slow.
func (c *Controller) doorOpened() []Action {
	if c.door != DoorOpen {
		c.counts.DoorOpens++
	}
	c.door = DoorOpen
	acts := c.silence(true)
	return append(acts, c.teardown()...)
}

func (c *Controller) doorClosed() []Action {
	if c.door != DoorClosed {
		c.counts.DoorCloses++
	}
	c.door = DoorClosed
	c.paused = false
	c.teardownPending = false
	return c.maybeStart()
}

func (c *Controller) sessionStarted() []Action {
	if c.dictation != DictationStarting {
		return nil
	}
	if c.completedPending {
		// The recognizer already ended this session; there is nothing to tear down.
		acts := c.finish()
		if len(acts) > 0 {
			c.counts.AutoRestarts++
		}
		return acts
	}
	c.dictation = DictationRunning
	if c.teardownPending || c.door == DoorOpen || c.paused || c.shutdown {
		c.teardownPending = false
		return c.teardown()
	}
	return nil
}

func (c *Controller) sessionStopped() []Action {
	if c.dictation != DictationStopping && c.dictation != DictationRunning {
		return nil
	}
	return c.finish()
}

func (c *Controller) commandFailed(ev Event) []Action {
	switch ev.Command {
	case ActionStartSession:
		if c.dictation != DictationStarting {
			return nil
		}
		c.counts.Failures++
		c.dictation = DictationIdle
		c.teardownPending = false
		c.completedPending = false
		if c.cfg.StartRetry <= 0 || c.retryPending || c.door != DoorClosed || c.paused || c.shutdown {
			return nil
		}
		c.retryPending = true
		return []Action{{Type: ActionScheduleRetry, Deadline: ev.Time.Add(c.cfg.StartRetry)}}
	case ActionStopSession, ActionCancelSession:
		if c.dictation != DictationStopping {
			return nil
		}
		c.counts.Failures++
		// Leaving the session in Stopping would block every later start.
		return c.finish()
	}
	return nil
}

func (c *Controller) recognizerState(ev Event) []Action {
	c.recognizer = ev.State

	switch ev.State {
	case RecognizerSpeechDetected:
		c.speaking = true
		return c.silence(false)
	case RecognizerSoundEnded:
		c.speaking = false
		return c.arm(ev.Time)
	}
	return nil
}

func (c *Controller) result(ev Event) []Action {
	if ev.Confidence == ConfidenceMedium || ev.Confidence == ConfidenceHigh {
		c.buffer.WriteString(ev.Text)
		c.buffer.WriteString(" ")
		return nil
	}

	c.counts.Discarded++
	if ev.Text == "" {
		return nil
	}
	return []Action{{Type: ActionDiscardResult, Text: preview(ev.Text)}}
}

func (c *Controller) completed(ev Event) []Action {
	switch c.dictation {
	case DictationRunning:
		acts := c.ended(ev.Status)
		restart := c.finish()
		if len(restart) > 0 {
			c.counts.AutoRestarts++
		}
		return append(acts, restart...)
	case DictationStarting:
		// The start acknowledgement is still in flight; finish once it arrives.
		if c.completedPending {
			return nil
		}
		c.completedPending = true
		return c.ended(ev.Status)
	case DictationStopping:
		return c.finish()
	}
	return nil
}

// ended accounts for a session the recognizer completed on its own.
// A timeout flushes the transcript; anything but success is a failure.
func (c *Controller) ended(status CompletionStatus) []Action {
	switch status {
	case StatusTimeoutExceeded:
		return c.flush()
	case StatusSuccess:
	default:
		c.counts.Failures++
	}
	return nil
}

// timerFired re-validates the current state; the state at arm time is not trusted.
func (c *Controller) timerFired(ev Event) []Action {
	if ev.Seq != c.seq {
		return nil
	}

	switch c.actuator {
	case ActuatorArmed:
		c.deadline = time.Time{}
		if c.door != DoorClosed || c.speaking || c.shutdown {
			c.actuator = ActuatorSilent
			return nil
		}
		c.actuator = ActuatorPulsing
		c.counts.Pulses++
		acts := []Action{{Type: ActionAssertActuator}}
		if c.cfg.PulseWidth > 0 {
			c.seq++
			c.deadline = ev.Time.Add(c.cfg.PulseWidth)
			acts = append(acts, Action{Type: ActionArmTimer, Deadline: c.deadline, Seq: c.seq})
		}
		return append(acts, c.restart()...)
	case ActuatorPulsing:
		c.actuator = ActuatorSilent
		c.deadline = time.Time{}
		return []Action{{Type: ActionReleaseActuator}}
	}
	return nil
}

// arm schedules a pulse after the configured interval. Re-arming replaces the previous schedule.
func (c *Controller) arm(now time.Time) []Action {
	if c.door != DoorClosed || c.shutdown || c.actuator == ActuatorPulsing {
		return nil
	}
	c.seq++
	c.actuator = ActuatorArmed
	c.deadline = now.Add(c.cfg.PulseInterval)
	return []Action{{Type: ActionArmTimer, Deadline: c.deadline, Seq: c.seq}}
}

// silence disarms any schedule and releases the output if it was asserted.
// With force set the output is released regardless of the current state.
func (c *Controller) silence(force bool) []Action {
	var acts []Action
	if c.actuator != ActuatorSilent {
		acts = append(acts, Action{Type: ActionDisarmTimer})
	}
	if force || c.actuator == ActuatorPulsing {
		acts = append(acts, Action{Type: ActionReleaseActuator})
	}
	c.actuator = ActuatorSilent
	c.deadline = time.Time{}
	// A fire already queued for the old schedule must not match.
	c.seq++
	return acts
}

// teardown initiates termination of the session. It is a no-op when idle or already stopping.
func (c *Controller) teardown() []Action {
	switch c.dictation {
	case DictationStarting:
		c.teardownPending = true
	case DictationRunning:
		c.dictation = DictationStopping
		if c.recognizer != RecognizerIdle {
			return []Action{{Type: ActionCancelSession, Session: c.session}}
		}
		return []Action{{Type: ActionStopSession, Session: c.session}}
	}
	return nil
}

// restart cycles the session after a pulse.
func (c *Controller) restart() []Action {
	switch c.dictation {
	case DictationRunning:
		return c.teardown()
	case DictationIdle:
		return c.maybeStart()
	}
	return nil
}

// finish marks the session idle and starts a new one when allowed.
func (c *Controller) finish() []Action {
	c.dictation = DictationIdle
	c.recognizer = RecognizerIdle
	c.speaking = false
	c.teardownPending = false
	c.completedPending = false
	return c.maybeStart()
}

// maybeStart issues a start unless the door is open or a command is already in flight.
func (c *Controller) maybeStart() []Action {
	if c.door != DoorClosed || c.dictation != DictationIdle || c.paused || c.shutdown {
		return nil
	}
	c.sessions++
	if c.cfg.NewSessionID != nil {
		c.session = c.cfg.NewSessionID()
	} else {
		c.session = strconv.FormatUint(c.sessions, 10)
	}
	c.dictation = DictationStarting
	c.recognizer = RecognizerIdle
	c.speaking = false
	c.completedPending = false
	c.counts.SessionStarts++
	return []Action{{Type: ActionStartSession, Session: c.session}}
}

func (c *Controller) flush() []Action {
	text := strings.TrimSpace(c.buffer.String())
	c.buffer.Reset()
	if text == "" {
		return nil
	}
	return []Action{{Type: ActionFlushTranscript, Session: c.session, Text: text}}
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= DiscardPreviewLen {
		return s
	}
	return string([]rune(s)[:DiscardPreviewLen]) + "..."
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Door:       c.door,
		Dictation:  c.dictation,
		Actuator:   c.actuator,
		Recognizer: c.recognizer,
		Speaking:   c.speaking,
		Paused:     c.paused,
		Session:    c.session,
		Deadline:   c.deadline,
		BufferLen:  c.buffer.Len(),
	}
}

// Transcript returns the text accepted since the last flush.
func (c *Controller) Transcript() string {
	return c.buffer.String()
}

// Idle reports whether no session is running or has a command in flight.
func (c *Controller) Idle() bool {
	return c.dictation == DictationIdle
}

// EventCounts returns a copy of the activity counters.
func (c *Controller) EventCounts() Counts {
	return c.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}
