package recognizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/door-dictator/internal/logic"
)

// Transport is the subset of an MQTT client the bridge needs.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, fn func(payload []byte)) error
}

// Bridge drives a recognizer process over MQTT. Commands go to <prefix>/cmd
// and events are read from <prefix>/events through one subscription made at
// construction.
type Bridge struct {
	transport Transport
	cmdTopic  string
	sink      Sink
	now       func() time.Time
	log       zerolog.Logger

	mu      sync.Mutex
	state   logic.RecognizerState
	session string
}

// NewBridge subscribes to the recognizer's event topic and forwards events to sink.
func NewBridge(t Transport, prefix string, sink Sink, log zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		transport: t,
		cmdTopic:  prefix + "/cmd",
		sink:      sink,
		now:       time.Now,
		log:       log,
		state:     logic.RecognizerIdle,
	}
	if err := t.Subscribe(prefix+"/events", b.handle); err != nil {
		return nil, fmt.Errorf("subscribe recognizer events: %w", err)
	}
	return b, nil
}

func (b *Bridge) handle(payload []byte) {
	ev, err := ParseEvent(payload, b.now())
	if err != nil {
		b.log.Warn().Err(err).Msg("dropping recognizer event")
		return
	}

	if ev.Kind == logic.EventRecognizerState {
		b.mu.Lock()
		if ev.Session == "" || ev.Session == b.session {
			b.state = ev.State
		}
		b.mu.Unlock()
	}
	b.sink(ev)
}

func (b *Bridge) send(command, session string) error {
	payload, err := FormatCommand(command, session, b.now())
	if err != nil {
		return fmt.Errorf("format %s command: %w", command, err)
	}
	// QoS 1: a lost stop would leave the recognizer running.
	if err := b.transport.Publish(b.cmdTopic, 1, false, payload); err != nil {
		return fmt.Errorf("publish %s command: %w", command, err)
	}
	return nil
}

// Start asks the recognizer to begin session id.
func (b *Bridge) Start(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	b.session = id
	b.state = logic.RecognizerIdle
	b.mu.Unlock()
	return b.send(CommandStart, id)
}

// Stop asks the recognizer to finish the current session.
func (b *Bridge) Stop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.send(CommandStop, b.current())
}

// Cancel asks the recognizer to abort the current session.
func (b *Bridge) Cancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.send(CommandCancel, b.current())
}

// State returns the last state the recognizer reported for the current session.
func (b *Bridge) State() logic.RecognizerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Close is a no-op; the transport is owned by the caller.
func (b *Bridge) Close() error {
	return nil
}
