package esc

import (
	"errors"
	"fmt"
	"time"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/hw/gpio"
)

// Cycle is the PWM period in duty units (16-bit duty resolution).
const Cycle uint32 = 65535

// ErrDutyOutOfRange is returned when a duty outside [0, Limit] is requested.
// The actuator never clamps on its own.
var ErrDutyOutOfRange = errors.New("duty out of range")

// Config holds the hardware configuration of one ESC channel.
type Config struct {
	Pin      int
	FreqHz   int           // PWM frequency, 50 Hz for SimonK ESCs
	Init     int           // arming duty
	Limit    int           // absolute duty ceiling
	ArmDelay time.Duration // time held at Init before the first flight duty
}

// ESC drives one brushless motor controller with a PWM duty cycle.
type ESC struct {
	gpio  gpio.PWMOutput
	cfg   Config
	duty  int
	sleep func(time.Duration)
}

// NewESC configures the PWM output and starts it at the init duty.
func NewESC(g gpio.PWMOutput, cfg Config) (*ESC, error) {
	if cfg.FreqHz <= 0 {
		cfg.FreqHz = 50
	}
	if cfg.Init < 0 || cfg.Init > cfg.Limit {
		return nil, fmt.Errorf("esc pin %d: init %d outside [0, %d]: %w", cfg.Pin, cfg.Init, cfg.Limit, ErrDutyOutOfRange)
	}
	if err := g.SetupPWM(cfg.Pin, cfg.FreqHz, Cycle); err != nil {
		return nil, fmt.Errorf("esc pin %d: %w", cfg.Pin, err)
	}

	e := &ESC{
		gpio:  g,
		cfg:   cfg,
		sleep: time.Sleep,
	}
	if err := e.SetDuty(cfg.Init); err != nil {
		return nil, err
	}
	return e, nil
}

// SetDuty writes a duty value. Values outside [0, Limit] are rejected
// and the previous duty stays in effect.
func (e *ESC) SetDuty(duty int) error {
	if duty < 0 || duty > e.cfg.Limit {
		return fmt.Errorf("esc pin %d: duty %d outside [0, %d]: %w", e.cfg.Pin, duty, e.cfg.Limit, ErrDutyOutOfRange)
	}
	if err := e.gpio.WritePWM(e.cfg.Pin, uint32(duty), Cycle); err != nil {
		return fmt.Errorf("esc pin %d: %w", e.cfg.Pin, err)
	}
	e.duty = duty
	return nil
}

// Duty returns the last duty written.
func (e *ESC) Duty() int {
	return e.duty
}

// Pin returns the PWM pin.
func (e *ESC) Pin() int {
	return e.cfg.Pin
}

// Arm holds the init duty for the arming delay, then drops to idle.
func (e *ESC) Arm(idle int) error {
	debug.Verbose("ESC pin %d: arming at %d, idle %d", e.cfg.Pin, e.cfg.Init, idle)
	if err := e.SetDuty(e.cfg.Init); err != nil {
		return err
	}
	e.sleep(e.cfg.ArmDelay)
	return e.SetDuty(idle)
}

// Stop sets the duty to zero.
func (e *ESC) Stop() error {
	return e.SetDuty(0)
}
