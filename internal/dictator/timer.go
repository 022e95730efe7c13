package dictator

import (
	"sync"
	"time"
)

// ActuatorTimer holds the single outstanding pulse schedule.
// Arming replaces any earlier schedule.
type ActuatorTimer struct {
	mu    sync.Mutex
	timer *time.Timer
	now   func() time.Time
	fire  func(seq uint64)
}

// NewActuatorTimer creates a timer that calls fire with the schedule's sequence number.
// fire runs on its own goroutine.
func NewActuatorTimer(now func() time.Time, fire func(seq uint64)) *ActuatorTimer {
	if now == nil {
		now = time.Now
	}
	return &ActuatorTimer{now: now, fire: fire}
}

// Arm schedules fire(seq) at deadline. A deadline in the past fires immediately.
func (t *ActuatorTimer) Arm(deadline time.Time, seq uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	d := deadline.Sub(t.now())
	if d < 0 {
		d = 0
	}
	var tm *time.Timer
	tm = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timer == tm {
			t.timer = nil
		}
		t.mu.Unlock()
		t.fire(seq)
	})
	t.timer = tm
}

// Disarm cancels the outstanding schedule, if any. A fire already in flight
// is not recalled; the controller drops it by sequence number.
func (t *ActuatorTimer) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Armed reports whether a schedule is outstanding.
func (t *ActuatorTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
