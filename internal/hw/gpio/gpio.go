package gpio

import (
	"github.com/picodrone/picodrone/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input, output, or hardware PWM.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

func (m PinMode) String() string {
	switch m {
	case Input:
		return "input"
	case Output:
		return "output"
	case PWM:
		return "pwm"
	default:
		return "unknown"
	}
}

// PWMOutput is the output side used by ESCs. Pins are BCM numbers on the
// Raspberry Pi driver and channel numbers on an external PWM board.
type PWMOutput interface {
	// SetupPWM configures pin as a PWM output whose period is cycle
	// counts at freqHz.
	SetupPWM(pin int, freqHz int, cycle uint32) error
	WritePWM(pin int, duty, cycle uint32) error
	Close() error
}

// Driver defines the abstract interface for controlling GPIOs and PWM
// outputs. This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	PWMOutput
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
}

// HardwarePWMChannel returns the BCM2835 PWM channel behind a BCM pin.
// Pins 12 and 18 share channel 0, pins 13 and 19 share channel 1, so at
// most two independent hardware PWM outputs exist.
func HardwarePWMChannel(pin int) (int, bool) {
	switch pin {
	case 12, 18:
		return 0, true
	case 13, 19:
		return 1, true
	}
	return 0, false
}

// MockDriver is a test implementation that simply logs actions.
// Used for development on PC or testing.
type MockDriver struct{}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) SetupPWM(pin int, freqHz int, cycle uint32) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.PWM(pin, duty, cycle)
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
