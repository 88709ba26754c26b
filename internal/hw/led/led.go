package led

import (
	"time"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/hw/gpio"
)

// Status is the on-board status LED. It is lit while the core is
// calibrating and blinks once the control loop takes over.
// A pin of 0 disables it.
type Status struct {
	gpio  gpio.Driver
	pin   int
	on    bool
	sleep func(time.Duration)
}

// NewStatus configures pin as an output and switches the LED off.
func NewStatus(g gpio.Driver, pin int) (*Status, error) {
	s := &Status{gpio: g, pin: pin, sleep: time.Sleep}
	if pin == 0 {
		return s, nil
	}
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return s, nil
}

// On lights the LED.
func (s *Status) On() error {
	return s.set(true)
}

// Off switches the LED off.
func (s *Status) Off() error {
	return s.set(false)
}

// Toggle inverts the LED state.
func (s *Status) Toggle() error {
	return s.set(!s.on)
}

// IsOn reports the last state written.
func (s *Status) IsOn() bool {
	return s.on
}

// Blink flashes the LED n times with period d, leaving it off.
func (s *Status) Blink(n int, d time.Duration) error {
	debug.Verbose("LED: blink x%d (%v)", n, d)
	if s.on {
		if err := s.Off(); err != nil {
			return err
		}
	}
	for i := 0; i < 2*n; i++ {
		if err := s.Toggle(); err != nil {
			return err
		}
		s.sleep(d / 2)
	}
	return nil
}

func (s *Status) set(on bool) error {
	if s.pin == 0 {
		s.on = on
		return nil
	}
	if err := s.gpio.WritePin(s.pin, gpio.Level(on)); err != nil {
		return err
	}
	s.on = on
	return nil
}
