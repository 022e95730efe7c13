//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads the door sensor using Linux GPIO character device.
type RealInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line

	mu sync.Mutex
	n  *notifier
}

// NewRealInput requests pin on chip as an input reporting both edges.
func NewRealInput(chipName string, pin int) (*RealInput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealInput{chip: chip}

	// Pull-down matches Pi boot defaults; a closed reed switch pulls the line low.
	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(r.handleEvent))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request door pin %d: %w", pin, err)
	}
	r.line = line

	return r, nil
}

// Read returns the current level of the door pin.
func (r *RealInput) Read() (Level, error) {
	v, err := r.line.Value()
	if err != nil {
		return Low, fmt.Errorf("read door pin: %w", err)
	}
	if v == 0 {
		return Low, nil
	}
	return High, nil
}

// Watch registers fn for debounced edges starting from initial.
func (r *RealInput) Watch(initial Level, window time.Duration, fn EdgeFunc) error {
	r.mu.Lock()
	if r.n != nil {
		r.mu.Unlock()
		return fmt.Errorf("gpio: input already watched")
	}
	n := newNotifier(window, initial, fn, r.Read, nil)
	r.n = n
	r.mu.Unlock()

	// Line events before registration were dropped; reconcile with the pin.
	level, err := r.Read()
	if err != nil {
		return err
	}
	n.raw(level)
	return nil
}

func (r *RealInput) handleEvent(evt gpiocdev.LineEvent) {
	r.mu.Lock()
	n := r.n
	r.mu.Unlock()
	if n == nil {
		return
	}

	level := Low
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = High
	}
	n.raw(level)
}

// Close stops edge delivery and releases GPIO resources.
func (r *RealInput) Close() error {
	r.mu.Lock()
	n := r.n
	r.mu.Unlock()
	if n != nil {
		n.stop()
	}

	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close door pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives the actuator pin using Linux GPIO character device.
type RealOutput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealOutput requests pin on chip as an output starting at initial.
func NewRealOutput(chipName string, pin int, initial Level) (*RealOutput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(int(initial)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request actuator pin %d: %w", pin, err)
	}

	return &RealOutput{chip: chip, line: line}, nil
}

// Write sets the actuator pin level.
func (o *RealOutput) Write(level Level) error {
	if err := o.line.SetValue(int(level)); err != nil {
		return fmt.Errorf("write actuator pin: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults) before
// closing so the actuator is not left driven during shutdown/reboot.
func (o *RealOutput) Close() error {
	var errs []error

	if o.line != nil {
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure actuator pin: %w", err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close actuator pin: %w", err))
		}
	}
	if o.chip != nil {
		if err := o.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
