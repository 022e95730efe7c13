package gpio

import (
	"sync"
	"time"
)

// Debouncer accepts a level change only when it is at least window after the
// previously accepted change. It is not safe for concurrent use.
type Debouncer struct {
	window time.Duration
	level  Level
	last   time.Time
	primed bool
}

// NewDebouncer creates a debouncer whose accepted level starts at initial.
func NewDebouncer(window time.Duration, initial Level) *Debouncer {
	return &Debouncer{window: window, level: initial}
}

// Push feeds a raw level observed at now. It returns the edge and true when
// the transition is accepted.
func (d *Debouncer) Push(level Level, now time.Time) (Edge, bool) {
	if level == d.level {
		return 0, false
	}
	if d.primed && now.Sub(d.last) < d.window {
		return 0, false
	}
	d.level = level
	d.last = now
	d.primed = true
	if level == High {
		return Rising, true
	}
	return Falling, true
}

// Level returns the last accepted level.
func (d *Debouncer) Level() Level {
	return d.level
}

// notifier turns raw levels into debounced edges for one watched input.
// A level rejected inside the window is re-read once the window has passed,
// so a bounce that settles on a new level still produces an edge.
type notifier struct {
	mu     sync.Mutex
	deb    *Debouncer
	window time.Duration
	fn     EdgeFunc
	read   func() (Level, error)
	now    func() time.Time
	settle *time.Timer
	closed bool
}

func newNotifier(window time.Duration, initial Level, fn EdgeFunc, read func() (Level, error), now func() time.Time) *notifier {
	if now == nil {
		now = time.Now
	}
	return &notifier{
		deb:    NewDebouncer(window, initial),
		window: window,
		fn:     fn,
		read:   read,
		now:    now,
	}
}

// raw handles a raw level. fn is called with the lock held so edges are delivered in order.
func (n *notifier) raw(level Level) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	at := n.now()
	if edge, ok := n.deb.Push(level, at); ok {
		n.fn(edge, at)
		return
	}
	if level != n.deb.Level() && n.settle == nil {
		n.settle = time.AfterFunc(n.window, n.resync)
	}
}

func (n *notifier) resync() {
	n.mu.Lock()
	n.settle = nil
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return
	}

	level, err := n.read()
	if err != nil {
		return
	}
	n.raw(level)
}

func (n *notifier) stop() {
	n.mu.Lock()
	n.closed = true
	if n.settle != nil {
		n.settle.Stop()
		n.settle = nil
	}
	n.mu.Unlock()
}
