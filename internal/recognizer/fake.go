package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/door-dictator/internal/logic"
)

// FakeSession records commands and lets tests emit recognizer events.
// With no errors configured every command succeeds, which is what dry runs use.
type FakeSession struct {
	mu   sync.Mutex
	sink Sink

	// Commands contains every command issued, e.g. "start:1", "stop", "cancel".
	Commands []string

	// StartError, StopError and CancelError, if set, are returned by the matching command.
	StartError  error
	StopError   error
	CancelError error

	// Closed tracks if Close was called.
	Closed bool

	state   logic.RecognizerState
	session string
}

// NewFakeSession creates a FakeSession forwarding emitted events to sink.
func NewFakeSession(sink Sink) *FakeSession {
	return &FakeSession{sink: sink, state: logic.RecognizerIdle}
}

// Start records a start command.
func (f *FakeSession) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, CommandStart+":"+id)
	if f.StartError != nil {
		return f.StartError
	}
	f.session = id
	f.state = logic.RecognizerCapturing
	return nil
}

// Stop records a stop command.
func (f *FakeSession) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, CommandStop)
	if f.StopError != nil {
		return f.StopError
	}
	f.state = logic.RecognizerIdle
	return nil
}

// Cancel records a cancel command.
func (f *FakeSession) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = append(f.Commands, CommandCancel)
	if f.CancelError != nil {
		return f.CancelError
	}
	f.state = logic.RecognizerIdle
	return nil
}

// State returns the fake recognizer state.
func (f *FakeSession) State() logic.RecognizerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Emit delivers ev to the sink, stamping the current session and time if unset.
func (f *FakeSession) Emit(ev logic.Event) {
	f.mu.Lock()
	if ev.Session == "" {
		ev.Session = f.session
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Kind == logic.EventRecognizerState {
		f.state = ev.State
	}
	sink := f.sink
	f.mu.Unlock()

	sink(ev)
}

// Issued returns a copy of the recorded commands.
func (f *FakeSession) Issued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Commands...)
}

// Close marks the session as closed.
func (f *FakeSession) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
