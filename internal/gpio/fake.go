package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double whose raw level is set by the test.
// It is also used for dry runs, where the door is driven over HTTP.
type FakeInput struct {
	mu sync.Mutex

	level Level
	n     *notifier

	// Now, if set, is the clock used for debounce decisions.
	Now func() time.Time

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeInput creates a FakeInput resting at initial.
func NewFakeInput(initial Level) *FakeInput {
	return &FakeInput{level: initial}
}

// Read returns the current raw level.
func (f *FakeInput) Read() (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.level, nil
}

// Watch registers fn for debounced edges starting from initial.
// Only one watcher is supported.
func (f *FakeInput) Watch(initial Level, window time.Duration, fn EdgeFunc) error {
	f.mu.Lock()
	if f.n != nil {
		f.mu.Unlock()
		return errors.New("gpio: input already watched")
	}
	n := newNotifier(window, initial, fn, f.Read, f.Now)
	f.n = n
	level := f.level
	f.mu.Unlock()

	n.raw(level)
	return nil
}

// Set changes the raw level, as a switch transition would.
func (f *FakeInput) Set(level Level) {
	f.mu.Lock()
	f.level = level
	n := f.n
	f.mu.Unlock()

	if n != nil {
		n.raw(level)
	}
}

// Close stops edge delivery and marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	n := f.n
	f.Closed = true
	f.mu.Unlock()

	if n != nil {
		n.stop()
	}
	return nil
}

// FakeOutput records writes for test assertions.
type FakeOutput struct {
	mu sync.Mutex

	// Writes contains every level written, in order.
	Writes []Level

	// WriteError, if set, will be returned by Write()
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Write records level.
func (f *FakeOutput) Write(level Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, level)
	return nil
}

// Level returns the last level written, and false if nothing was written.
func (f *FakeOutput) Level() (Level, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Writes) == 0 {
		return Low, false
	}
	return f.Writes[len(f.Writes)-1], true
}

// History returns a copy of all writes.
func (f *FakeOutput) History() []Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Level(nil), f.Writes...)
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
