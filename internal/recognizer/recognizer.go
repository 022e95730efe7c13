// Package recognizer adapts an external continuous speech recognizer to the
// controller. Recognition itself happens elsewhere; adapters only issue
// start/stop/cancel and translate the recognizer's events.
package recognizer

import (
	"context"

	"github.com/sweeney/door-dictator/internal/logic"
)

// Sink receives recognizer events. An adapter is given exactly one sink for its lifetime.
type Sink func(logic.Event)

// Session is the recognition session boundary.
// Start, Stop and Cancel return once the recognizer has accepted the command;
// the caller runs them off the event loop.
type Session interface {
	// Start begins a session. Events produced by it carry id.
	Start(ctx context.Context, id string) error

	// Stop ends the session after pending audio is processed.
	Stop(ctx context.Context) error

	// Cancel ends the session immediately, discarding pending audio.
	Cancel(ctx context.Context) error

	// State returns the last state reported by the recognizer.
	State() logic.RecognizerState

	// Close releases the adapter.
	Close() error
}

// Factory creates a session adapter delivering its events to sink.
type Factory func(sink Sink) (Session, error)
