// Package dictator runs the door/dictation controller against real or fake
// hardware, a recognizer session and an MQTT publisher.
//
// All controller events are funnelled through one channel and handled on the
// goroutine that called Run. Session commands, timers and GPIO callbacks only
// ever post events back to it.
package dictator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/door-dictator/internal/gpio"
	"github.com/sweeney/door-dictator/internal/logic"
	"github.com/sweeney/door-dictator/internal/mqtt"
	"github.com/sweeney/door-dictator/internal/recognizer"
	"github.com/sweeney/door-dictator/internal/status"
)

// Defaults applied by New when the option is zero.
const (
	DefaultCommandTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 3 * time.Second
	DefaultStatusInterval  = time.Second
	eventQueueSize         = 256
)

// Options configures a Runner. Door, Actuator, NewSession and Publisher are required.
type Options struct {
	Door       gpio.Input
	Actuator   *gpio.Actuator
	NewSession recognizer.Factory
	Publisher  mqtt.Publisher

	// Connection reports broker connectivity to the tracker. Optional.
	Connection mqtt.ConnectionStatus
	// Tracker receives state for the HTTP server. Optional.
	Tracker *status.Tracker

	Debounce        time.Duration
	PulseInterval   time.Duration
	PulseWidth      time.Duration
	StartRetry      time.Duration
	Heartbeat       time.Duration
	CommandTimeout  time.Duration
	ShutdownTimeout time.Duration
	StatusInterval  time.Duration

	Now          func() time.Time
	NewSessionID func() string
	Logger       zerolog.Logger
}

// Runner owns the controller and carries out its actions.
type Runner struct {
	opts Options
	log  zerolog.Logger

	events   chan logic.Event
	done     chan struct{}
	doneOnce sync.Once

	ctrl    *logic.Controller
	session recognizer.Session
	timer   *ActuatorTimer

	retryMu sync.Mutex
	retry   *time.Timer

	cmdCtx    context.Context
	cmdCancel context.CancelFunc
	cmdWG     sync.WaitGroup

	last logic.Snapshot
}

// New creates a Runner. Events may be posted before Run is called; they are
// queued until the loop starts.
func New(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}

	r := &Runner{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "dictator").Logger(),
		events: make(chan logic.Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	r.cmdCtx, r.cmdCancel = context.WithCancel(context.Background())
	r.timer = NewActuatorTimer(opts.Now, func(seq uint64) {
		r.Post(logic.Event{Kind: logic.EventActuatorTimer, Time: r.opts.Now(), Seq: seq})
	})
	return r
}

// Post queues ev for the controller. It is safe for concurrent use and
// returns without queueing once the runner has stopped.
func (r *Runner) Post(ev logic.Event) {
	if ev.Time.IsZero() {
		ev.Time = r.opts.Now()
	}
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// RequestStart resumes dictation after RequestStop.
func (r *Runner) RequestStart() {
	r.Post(logic.Event{Kind: logic.EventStartRequested})
}

// RequestStop pauses dictation until RequestStart or the next door close.
func (r *Runner) RequestStop() {
	r.Post(logic.Event{Kind: logic.EventStopRequested})
}

// Done is closed when Run has returned.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Run reads the initial door level, drives the controller until ctx is
// cancelled, then shuts the session down and leaves the actuator released.
func (r *Runner) Run(ctx context.Context) error {
	defer r.stop()

	if r.opts.Door == nil || r.opts.Actuator == nil || r.opts.NewSession == nil || r.opts.Publisher == nil {
		return errors.New("dictator: door, actuator, session and publisher are required")
	}

	session, err := r.opts.NewSession(r.Post)
	if err != nil {
		return fmt.Errorf("create recognizer session: %w", err)
	}
	r.session = session
	defer session.Close()

	level, err := r.opts.Door.Read()
	if err != nil {
		return fmt.Errorf("read door: %w", err)
	}
	door := r.doorState(level)
	start := r.opts.Now()

	r.ctrl = logic.NewController(logic.Config{
		PulseInterval: r.opts.PulseInterval,
		PulseWidth:    r.opts.PulseWidth,
		StartRetry:    r.opts.StartRetry,
		NewSessionID:  r.opts.NewSessionID,
	}, door, start)

	r.log.Info().
		Str("door", string(door)).
		Dur("debounce", r.opts.Debounce).
		Dur("pulse_interval", r.opts.PulseInterval).
		Dur("pulse_width", r.opts.PulseWidth).
		Msg("controller started")

	r.execute(r.ctrl.Init())
	r.publishState(start, "INIT")

	// The watcher starts from the level the controller saw, so a change
	// since the read above arrives as an edge.
	if err := r.opts.Door.Watch(level, r.opts.Debounce, r.onEdge); err != nil {
		r.shutdown()
		return fmt.Errorf("watch door: %w", err)
	}

	ticker := time.NewTicker(r.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case ev := <-r.events:
			r.handle(ev)
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) onEdge(edge gpio.Edge, at time.Time) {
	level := gpio.Low
	if edge == gpio.Rising {
		level = gpio.High
	}
	kind := logic.EventDoorClosed
	if r.doorState(level) == logic.DoorOpen {
		kind = logic.EventDoorOpened
	}
	r.Post(logic.Event{Kind: kind, Time: at})
}

// doorState maps a sensor level to the door position. The reed switch reads High when open.
func (r *Runner) doorState(level gpio.Level) logic.DoorState {
	if level == gpio.High {
		return logic.DoorOpen
	}
	return logic.DoorClosed
}

func (r *Runner) handle(ev logic.Event) {
	switch ev.Kind {
	case logic.EventDoorOpened, logic.EventStopRequested, logic.EventShutdown:
		// Teardown picks cancel or stop from the state the session reports for itself.
		if ev.State == "" && r.session != nil {
			ev.State = r.session.State()
		}
	}
	r.logEvent(ev)
	r.execute(r.ctrl.Handle(ev))
	r.publishState(ev.Time, ev.Kind)
}

func (r *Runner) logEvent(ev logic.Event) {
	switch ev.Kind {
	case logic.EventDoorOpened, logic.EventDoorClosed:
		r.log.Info().Str("event", string(ev.Kind)).Msg("door")
	case logic.EventCommandFailed:
		r.log.Warn().Err(ev.Err).Str("command", string(ev.Command)).Str("session", ev.Session).Msg("session command failed")
	case logic.EventRecognizerState:
		r.log.Debug().Str("state", string(ev.State)).Str("session", ev.Session).Msg("recognizer")
	case logic.EventResult:
		r.log.Debug().Str("confidence", string(ev.Confidence)).Str("session", ev.Session).Msg("result")
	case logic.EventCompleted:
		r.log.Info().Str("status", string(ev.Status)).Str("session", ev.Session).Msg("session completed")
	default:
		r.log.Debug().Str("event", string(ev.Kind)).Msg("event")
	}
}

// execute carries out actions in order. Session commands run asynchronously
// and report back through Post.
func (r *Runner) execute(acts []logic.Action) {
	for _, a := range acts {
		switch a.Type {
		case logic.ActionStartSession:
			id := a.Session
			r.command(a.Type, id, func(ctx context.Context) error {
				return r.session.Start(ctx, id)
			})
		case logic.ActionStopSession:
			r.command(a.Type, a.Session, r.session.Stop)
		case logic.ActionCancelSession:
			r.command(a.Type, a.Session, r.session.Cancel)
		case logic.ActionAssertActuator:
			if err := r.opts.Actuator.Assert(); err != nil {
				r.log.Error().Err(err).Msg("assert actuator")
			} else {
				r.log.Info().Msg("actuator pulse")
			}
		case logic.ActionReleaseActuator:
			if err := r.opts.Actuator.Release(); err != nil {
				r.log.Error().Err(err).Msg("release actuator")
			}
		case logic.ActionArmTimer:
			r.timer.Arm(a.Deadline, a.Seq)
		case logic.ActionDisarmTimer:
			r.timer.Disarm()
		case logic.ActionScheduleRetry:
			r.scheduleRetry(a.Deadline)
		case logic.ActionFlushTranscript:
			r.flush(a.Session, a.Text)
		case logic.ActionDiscardResult:
			r.log.Info().Str("preview", a.Text).Msg("discarded low confidence result")
			if r.opts.Tracker != nil {
				r.opts.Tracker.SetDiscarded(a.Text)
			}
		}
	}
}

func (r *Runner) command(cmd logic.ActionType, session string, fn func(context.Context) error) {
	r.log.Debug().Str("command", string(cmd)).Str("session", session).Msg("session command")
	r.cmdWG.Add(1)
	go func() {
		defer r.cmdWG.Done()
		ctx, cancel := context.WithTimeout(r.cmdCtx, r.opts.CommandTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.Post(logic.Event{Kind: logic.EventCommandFailed, Session: session, Command: cmd, Err: err})
			return
		}
		kind := logic.EventSessionStopped
		if cmd == logic.ActionStartSession {
			kind = logic.EventSessionStarted
		}
		r.Post(logic.Event{Kind: kind, Session: session})
	}()
}

func (r *Runner) scheduleRetry(deadline time.Time) {
	d := deadline.Sub(r.opts.Now())
	if d < 0 {
		d = 0
	}
	r.log.Info().Dur("in", d).Msg("session start retry scheduled")

	r.retryMu.Lock()
	defer r.retryMu.Unlock()
	if r.retry != nil {
		r.retry.Stop()
	}
	r.retry = time.AfterFunc(d, func() {
		r.Post(logic.Event{Kind: logic.EventRetryStart})
	})
}

func (r *Runner) flush(session, text string) {
	t := mqtt.Transcript{
		Timestamp: r.opts.Now(),
		Session:   session,
		Text:      text,
	}
	r.log.Info().Str("session", t.Session).Int("chars", len(text)).Msg("transcript")
	if err := r.opts.Publisher.PublishTranscript(t); err != nil {
		r.log.Warn().Err(err).Msg("publish transcript")
	}
	if r.opts.Tracker != nil {
		r.opts.Tracker.SetTranscript(text)
	}
}

// publishState publishes the snapshot when a field visible to subscribers changed.
func (r *Runner) publishState(at time.Time, cause logic.EventKind) {
	snap := r.ctrl.Snapshot()
	if r.opts.Tracker != nil {
		r.opts.Tracker.Update(snap, r.ctrl.EventCounts())
	}
	if visible(snap) == visible(r.last) {
		return
	}
	r.last = snap
	if err := r.opts.Publisher.PublishState(mqtt.StateEvent{Timestamp: at, Cause: cause, State: snap}); err != nil {
		r.log.Warn().Err(err).Msg("publish state")
	}
}

type visibleState struct {
	door       logic.DoorState
	dictation  logic.DictationState
	actuator   logic.ActuatorState
	recognizer logic.RecognizerState
	session    string
	paused     bool
}

func visible(s logic.Snapshot) visibleState {
	return visibleState{s.Door, s.Dictation, s.Actuator, s.Recognizer, s.Session, s.Paused}
}

func (r *Runner) tick() {
	now := r.opts.Now()
	if r.opts.Tracker != nil && r.opts.Connection != nil {
		r.opts.Tracker.SetMQTTConnected(r.opts.Connection.IsConnected())
	}

	hb := r.ctrl.CheckHeartbeat(now, r.opts.Heartbeat)
	if hb == nil {
		return
	}
	c := hb.Counts
	r.log.Info().
		Dur("uptime", hb.Uptime).
		Int("door_opens", c.DoorOpens).
		Int("door_closes", c.DoorCloses).
		Int("sessions", c.SessionStarts).
		Int("pulses", c.Pulses).
		Int("failures", c.Failures).
		Msg("heartbeat")

	ev := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if r.opts.Tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(r.opts.Tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := r.opts.Publisher.PublishSystem(ev); err != nil {
		r.log.Warn().Err(err).Msg("publish heartbeat")
	}
}

// shutdown flushes the transcript, tears the session down and waits for the
// controller to go idle, bounded by ShutdownTimeout.
func (r *Runner) shutdown() {
	r.log.Info().Msg("shutting down")
	r.handle(logic.Event{Kind: logic.EventShutdown, Time: r.opts.Now()})

	deadline := time.NewTimer(r.opts.ShutdownTimeout)
	defer deadline.Stop()

drain:
	for !r.ctrl.Idle() {
		select {
		case ev := <-r.events:
			r.handle(ev)
		case <-deadline.C:
			r.log.Warn().Str("dictation", string(r.ctrl.Snapshot().Dictation)).Msg("session did not stop before shutdown timeout")
			break drain
		}
	}

	r.timer.Disarm()
	if err := r.opts.Actuator.Release(); err != nil {
		r.log.Error().Err(err).Msg("release actuator")
	}
}

func (r *Runner) stop() {
	r.doneOnce.Do(func() { close(r.done) })

	r.retryMu.Lock()
	if r.retry != nil {
		r.retry.Stop()
	}
	r.retryMu.Unlock()
	r.timer.Disarm()

	r.cmdCancel()
	r.cmdWG.Wait()
}

// Snapshot returns the controller state. Only valid from the Run goroutine or after Run returns.
func (r *Runner) Snapshot() logic.Snapshot {
	if r.ctrl == nil {
		return logic.Snapshot{}
	}
	return r.ctrl.Snapshot()
}
