package gpio

// Actuator drives an output pin with configurable polarity.
type Actuator struct {
	out       Output
	activeLow bool
}

// NewActuator wraps out. With activeLow set, asserting writes Low.
func NewActuator(out Output, activeLow bool) *Actuator {
	return &Actuator{out: out, activeLow: activeLow}
}

// Assert drives the pin to its active level.
func (a *Actuator) Assert() error {
	return a.out.Write(a.level(true))
}

// Release drives the pin to its inactive level.
func (a *Actuator) Release() error {
	return a.out.Write(a.level(false))
}

// InactiveLevel is the level the pin rests at.
func (a *Actuator) InactiveLevel() Level {
	return a.level(false)
}

func (a *Actuator) level(active bool) Level {
	if active != a.activeLow {
		return High
	}
	return Low
}
