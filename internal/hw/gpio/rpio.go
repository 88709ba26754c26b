package gpio

import (
	"fmt"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// Hardware PWM is only available on BCM 12, 13, 18 and 19, and each
// channel drives a single pin here (see HardwarePWMChannel).
type RPiDriver struct {
	pins     map[int]rpio.Pin
	pwm      map[int]rpio.Pin
	channels map[int]int // PWM channel -> pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
// PWM additionally requires /dev/mem access.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins:     make(map[int]rpio.Pin),
		pwm:      make(map[int]rpio.Pin),
		channels: make(map[int]int),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Pwm()
		r.pwm[pin] = p
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		// Pin not setup yet, setup as output
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	if freqHz <= 0 || cycle == 0 {
		return fmt.Errorf("invalid PWM setup on pin %d: freq=%d cycle=%d", pin, freqHz, cycle)
	}
	if err := claimChannel(r.channels, pin); err != nil {
		return err
	}
	if err := r.SetupPin(pin, PWM); err != nil {
		return err
	}
	// The PWM clock ticks cycle times per output period.
	p := r.pwm[pin]
	p.Freq(freqHz * int(cycle))
	p.DutyCycle(0, cycle)
	return nil
}

// claimChannel records pin as the owner of its hardware PWM channel.
// Two pins on one channel would share a duty register.
func claimChannel(owners map[int]int, pin int) error {
	ch, ok := HardwarePWMChannel(pin)
	if !ok {
		return fmt.Errorf("pin %d has no hardware PWM", pin)
	}
	if owner, used := owners[ch]; used && owner != pin {
		return fmt.Errorf("pin %d: PWM channel %d already driven by pin %d", pin, ch, owner)
	}
	owners[ch] = pin
	return nil
}

func (r *RPiDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.PWM(pin, duty, cycle)

	p, ok := r.pwm[pin]
	if !ok {
		return fmt.Errorf("pin %d is not configured for PWM", pin)
	}
	if duty > cycle {
		return fmt.Errorf("duty %d exceeds cycle %d on pin %d", duty, cycle, pin)
	}
	p.DutyCycle(duty, cycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Stop PWM outputs first, then reset all pins to input (safe state)
	for pin, p := range r.pwm {
		debug.Verbose("Stopping PWM on pin %d", pin)
		p.DutyCycle(0, 1)
	}
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
