package dictator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/door-dictator/internal/gpio"
	"github.com/sweeney/door-dictator/internal/logic"
	"github.com/sweeney/door-dictator/internal/mqtt"
	"github.com/sweeney/door-dictator/internal/recognizer"
	"github.com/sweeney/door-dictator/internal/status"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

type harness struct {
	input   *gpio.FakeInput
	output  *gpio.FakeOutput
	session *recognizer.FakeSession
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	runner  *Runner

	cancel context.CancelFunc
	errCh  chan error
}

func newHarness(t *testing.T, door gpio.Level, configure func(*Options, *recognizer.FakeSession)) *harness {
	t.Helper()
	h := &harness{
		input:   gpio.NewFakeInput(door),
		output:  gpio.NewFakeOutput(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{}),
	}

	var ids atomic.Int64
	opts := Options{
		Door:      h.input,
		Actuator:  gpio.NewActuator(h.output, true),
		Publisher: h.pub,
		Tracker:   h.tracker,
		NewSession: func(recognizer.Sink) (recognizer.Session, error) {
			return h.session, nil
		},
		Debounce:        time.Millisecond,
		PulseInterval:   20 * time.Millisecond,
		StartRetry:      20 * time.Millisecond,
		ShutdownTimeout: time.Second,
		StatusInterval:  5 * time.Millisecond,
		NewSessionID: func() string {
			return fmt.Sprintf("s%d", ids.Add(1))
		},
		Logger: zerolog.Nop(),
	}
	h.runner = New(opts)
	h.session = recognizer.NewFakeSession(h.runner.Post)
	if configure != nil {
		configure(&h.runner.opts, h.session)
	}
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.errCh = make(chan error, 1)
	go func() { h.errCh <- h.runner.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.runner.Done()
	})
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(waitFor):
		t.Fatal("runner did not stop")
		return nil
	}
}

func (h *harness) issued(want ...string) func() bool {
	return func() bool {
		got := h.session.Issued()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func (h *harness) dictation(want logic.DictationState) func() bool {
	return func() bool { return h.tracker.Snapshot().State.Dictation == want }
}

func (h *harness) outputIs(want gpio.Level) func() bool {
	return func() bool {
		l, ok := h.output.Level()
		return ok && l == want
	}
}

func TestRunnerStartsSessionWhenClosed(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)

	assert.Eventually(t, h.issued("start:s1"), waitFor, tick)
	assert.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	// Active low: the pin rests High.
	hist := h.output.History()
	require.NotEmpty(t, hist)
	assert.Equal(t, gpio.High, hist[0])

	events := h.pub.StateEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, logic.EventKind("INIT"), events[0].Cause)
	assert.Equal(t, logic.DoorClosed, events[0].State.Door)
}

func TestRunnerStaysIdleWhenOpen(t *testing.T) {
	h := newHarness(t, gpio.High, nil)
	h.start(t)

	assert.Eventually(t, func() bool { return h.tracker.Snapshot().Ready }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, h.session.Issued())
	snap := h.tracker.Snapshot()
	assert.Equal(t, logic.DoorOpen, snap.State.Door)
	assert.Equal(t, logic.DictationIdle, snap.State.Dictation)
}

func TestRunnerPulseAndRestart(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.session.Emit(logic.Event{Kind: logic.EventRecognizerState, State: logic.RecognizerSoundEnded})

	// Pulse asserts the active-low pin, then the session is cancelled and restarted.
	assert.Eventually(t, h.outputIs(gpio.Low), waitFor, tick)
	assert.Eventually(t, h.issued("start:s1", "cancel", "start:s2"), waitFor, tick)
	assert.Eventually(t, func() bool { return h.tracker.Snapshot().Counts.Pulses == 1 }, waitFor, tick)

	// Speech in the new session silences the pulse.
	h.session.Emit(logic.Event{Kind: logic.EventRecognizerState, State: logic.RecognizerSpeechDetected})
	assert.Eventually(t, h.outputIs(gpio.High), waitFor, tick)
}

func TestRunnerPulseWidthReleases(t *testing.T) {
	h := newHarness(t, gpio.Low, func(o *Options, _ *recognizer.FakeSession) {
		o.PulseWidth = 10 * time.Millisecond
	})
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.session.Emit(logic.Event{Kind: logic.EventRecognizerState, State: logic.RecognizerSoundEnded})

	assert.Eventually(t, func() bool {
		hist := h.output.History()
		n := len(hist)
		return n >= 3 && hist[n-2] == gpio.Low && hist[n-1] == gpio.High
	}, waitFor, tick)
}

func TestRunnerDoorOpenStopsSession(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	// An idle recognizer is stopped rather than cancelled.
	h.session.Emit(logic.Event{Kind: logic.EventRecognizerState, State: logic.RecognizerIdle})
	require.Eventually(t, func() bool {
		return h.tracker.Snapshot().State.Recognizer == logic.RecognizerIdle && h.session.State() == logic.RecognizerIdle
	}, waitFor, tick)

	h.input.Set(gpio.High)

	assert.Eventually(t, h.issued("start:s1", "stop"), waitFor, tick)
	assert.Eventually(t, func() bool {
		s := h.tracker.Snapshot().State
		return s.Door == logic.DoorOpen && s.Dictation == logic.DictationIdle
	}, waitFor, tick)

	time.Sleep(5 * time.Millisecond)
	h.input.Set(gpio.Low)

	assert.Eventually(t, h.issued("start:s1", "stop", "start:s2"), waitFor, tick)
	assert.Eventually(t, func() bool {
		c := h.tracker.Snapshot().Counts
		return c.DoorOpens == 1 && c.DoorCloses == 1
	}, waitFor, tick)
}

func TestRunnerDoorOpenCancelsActiveRecognizer(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	// The session reports Capturing once started but has sent no state event yet.
	require.Equal(t, logic.RecognizerCapturing, h.session.State())
	require.Equal(t, logic.RecognizerIdle, h.tracker.Snapshot().State.Recognizer)

	h.input.Set(gpio.High)
	assert.Eventually(t, h.issued("start:s1", "cancel"), waitFor, tick)
}

// openingDoor reads closed once, then the door is found open.
type openingDoor struct {
	*gpio.FakeInput
	reads atomic.Int32
}

func (d *openingDoor) Read() (gpio.Level, error) {
	level, err := d.FakeInput.Read()
	if d.reads.Add(1) == 1 {
		d.FakeInput.Set(gpio.High)
	}
	return level, err
}

func TestRunnerDoorOpenedDuringStartup(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.runner.opts.Door = &openingDoor{FakeInput: h.input}
	h.start(t)

	assert.Eventually(t, func() bool {
		snap := h.tracker.Snapshot()
		return snap.State.Door == logic.DoorOpen && snap.State.Dictation == logic.DictationIdle
	}, waitFor, tick)
	// Stop or cancel depending on whether the start was acknowledged before the edge.
	assert.Eventually(t, func() bool {
		got := h.session.Issued()
		return len(got) == 2 && got[0] == "start:s1" && (got[1] == "stop" || got[1] == "cancel")
	}, waitFor, tick)

	snap := h.tracker.Snapshot()
	assert.Equal(t, 1, snap.Counts.DoorOpens)
	assert.Equal(t, 1, snap.Counts.SessionStarts)
}

func TestRunnerTimeoutFlushesAndRestarts(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.session.Emit(logic.Event{Kind: logic.EventResult, Text: "hello", Confidence: logic.ConfidenceHigh})
	h.session.Emit(logic.Event{Kind: logic.EventResult, Text: "mumble", Confidence: logic.ConfidenceLow})
	h.session.Emit(logic.Event{Kind: logic.EventResult, Text: "world", Confidence: logic.ConfidenceMedium})
	h.session.Emit(logic.Event{Kind: logic.EventCompleted, Status: logic.StatusTimeoutExceeded})

	assert.Eventually(t, h.issued("start:s1", "start:s2"), waitFor, tick)
	assert.Eventually(t, func() bool { return len(h.pub.TranscriptEvents()) == 1 }, waitFor, tick)

	tr := h.pub.TranscriptEvents()[0]
	assert.Equal(t, "hello world", tr.Text)
	assert.Equal(t, "s1", tr.Session)

	assert.Eventually(t, func() bool {
		snap := h.tracker.Snapshot()
		return snap.LastTranscript == "hello world" && snap.LastDiscarded == "mumble" && snap.Counts.AutoRestarts == 1
	}, waitFor, tick)
}

func TestRunnerStaleSessionIgnored(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.session.Emit(logic.Event{Kind: logic.EventCompleted, Status: logic.StatusTimeoutExceeded, Session: "old"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"start:s1"}, h.session.Issued())
}

func TestRunnerStartFailureRetries(t *testing.T) {
	h := newHarness(t, gpio.Low, func(_ *Options, s *recognizer.FakeSession) {
		s.StartError = errors.New("recognizer busy")
	})
	h.start(t)

	assert.Eventually(t, func() bool { return len(h.session.Issued()) >= 3 }, waitFor, tick)
	assert.Eventually(t, func() bool { return h.tracker.Snapshot().Counts.Failures >= 2 }, waitFor, tick)
}

func TestRunnerPauseResume(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.runner.RequestStop()
	assert.Eventually(t, h.issued("start:s1", "cancel"), waitFor, tick)
	assert.Eventually(t, func() bool {
		s := h.tracker.Snapshot().State
		return s.Paused && s.Dictation == logic.DictationIdle
	}, waitFor, tick)

	h.runner.RequestStart()
	assert.Eventually(t, h.issued("start:s1", "cancel", "start:s2"), waitFor, tick)
}

func TestRunnerShutdown(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationRunning), waitFor, tick)

	h.session.Emit(logic.Event{Kind: logic.EventResult, Text: "pending words", Confidence: logic.ConfidenceMedium})
	require.Eventually(t, func() bool { return h.tracker.Snapshot().State.BufferLen > 0 }, waitFor, tick)

	require.NoError(t, h.stop(t))

	assert.Equal(t, []string{"start:s1", "cancel"}, h.session.Issued())
	assert.True(t, h.session.Closed)

	l, ok := h.output.Level()
	require.True(t, ok)
	assert.Equal(t, gpio.High, l)

	trs := h.pub.TranscriptEvents()
	require.Len(t, trs, 1)
	assert.Equal(t, "pending words", trs[0].Text)
}

func TestRunnerShutdownTimeout(t *testing.T) {
	h := newHarness(t, gpio.Low, func(o *Options, _ *recognizer.FakeSession) {
		o.ShutdownTimeout = 20 * time.Millisecond
	})
	// A start that never completes keeps the controller busy.
	h.runner.opts.NewSession = func(recognizer.Sink) (recognizer.Session, error) {
		return blockingSession{h.session}, nil
	}
	h.start(t)
	require.Eventually(t, h.dictation(logic.DictationStarting), waitFor, tick)

	start := time.Now()
	require.NoError(t, h.stop(t))
	assert.Less(t, time.Since(start), time.Second)

	l, ok := h.output.Level()
	require.True(t, ok)
	assert.Equal(t, gpio.High, l)
}

type blockingSession struct {
	*recognizer.FakeSession
}

func (b blockingSession) Start(ctx context.Context, id string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunnerReadError(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.input.ReadError = errors.New("no chip")

	err := h.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read door")
}

func TestRunnerSessionFactoryError(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.runner.opts.NewSession = func(recognizer.Sink) (recognizer.Session, error) {
		return nil, errors.New("broker unreachable")
	}

	err := h.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
}

func TestRunnerHeartbeat(t *testing.T) {
	h := newHarness(t, gpio.Low, func(o *Options, _ *recognizer.FakeSession) {
		o.Heartbeat = 10 * time.Millisecond
	})
	h.start(t)

	assert.Eventually(t, func() bool {
		for _, ev := range h.pub.System() {
			if ev.Event == "HEARTBEAT" {
				return len(ev.RawPayload) > 0
			}
		}
		return false
	}, waitFor, tick)
}

func TestRunnerPostAfterStopDoesNotBlock(t *testing.T) {
	h := newHarness(t, gpio.Low, nil)
	h.start(t)
	require.NoError(t, h.stop(t))

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventQueueSize*2; i++ {
			h.runner.Post(logic.Event{Kind: logic.EventDoorOpened})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Post blocked after runner stopped")
	}
}
