// Package gpio provides the door input and actuator output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing and dry runs without hardware.
package gpio

import "time"

// Level is a raw pin level.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Edge is a debounced transition of an input.
type Edge int

const (
	Rising Edge = iota
	Falling
)

func (e Edge) String() string {
	if e == Rising {
		return "RISING"
	}
	return "FALLING"
}

// EdgeFunc receives debounced edges with the time they were accepted.
type EdgeFunc func(edge Edge, at time.Time)

// Input is a digital input with debounced edge notification.
type Input interface {
	// Read returns the instantaneous level. Only used for initialization.
	Read() (Level, error)

	// Watch registers fn for debounced edges, starting from the level the
	// caller last observed. If the input has moved away from initial, fn is
	// called for that edge before Watch returns. Raw transitions within
	// window of the previous accepted transition are discarded.
	Watch(initial Level, window time.Duration, fn EdgeFunc) error

	// Close releases GPIO resources.
	Close() error
}

// Output is a digital output. Writes are idempotent.
type Output interface {
	Write(level Level) error
	Close() error
}

// Defaults (BCM numbering)
const (
	DefaultChip        = "gpiochip0"
	DefaultDoorPin     = 17
	DefaultActuatorPin = 24
)
