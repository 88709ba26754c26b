package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/hw/imu"
	"github.com/picodrone/picodrone/internal/hw/rc"
	"github.com/picodrone/picodrone/internal/logic/flight"
	"github.com/picodrone/picodrone/internal/telemetry"
)

// ErrNotCalibrated is returned by Run when the controllers lack a
// complete threshold bundle.
var ErrNotCalibrated = errors.New("flight controllers are not calibrated")

// Pusher sends four duty values to the motors.
type Pusher interface {
	Push(duties [4]int) error
}

// Params sets the loop cadence and the receiver failsafe.
type Params struct {
	Interval    time.Duration // tick period, sticks are read every tick
	Subdivision int           // ticks per duty update

	// Failsafe is fed to the stick filters while the receiver reports
	// rc.ErrNoSignal. Centered sticks hold altitude and attitude.
	Failsafe [3]int
}

// Loop is the fixed-rate flight loop. It owns the four controllers while
// running; nothing else may touch them.
type Loop struct {
	sensor   imu.Sensor
	sticks   rc.StickReader
	quad     flight.Quad
	motors   Pusher
	recorder telemetry.Recorder

	interval    time.Duration
	subdivision int
	failsafe    [3]int

	tick       int
	signalLost bool
	sample imu.Sample
	stick  [3]int
	duties [4]int

	now   func() time.Time
	sleep func(time.Duration)
}

// New validates p and assembles a loop. A nil recorder discards frames.
func New(sensor imu.Sensor, sticks rc.StickReader, quad flight.Quad, motors Pusher, recorder telemetry.Recorder, p Params) (*Loop, error) {
	if p.Interval <= 0 {
		return nil, fmt.Errorf("loop interval must be positive, got %v", p.Interval)
	}
	if p.Subdivision <= 0 {
		return nil, fmt.Errorf("loop subdivision must be positive, got %d", p.Subdivision)
	}
	if recorder == nil {
		recorder = telemetry.Discard
	}
	return &Loop{
		sensor:      sensor,
		sticks:      sticks,
		quad:        quad,
		motors:      motors,
		recorder:    recorder,
		interval:    p.Interval,
		subdivision: p.Subdivision,
		failsafe:    p.Failsafe,
		duties:      quad.Current(),
		now:         time.Now,
		sleep:       time.Sleep,
	}, nil
}

// Run ticks until ctx is done. The context is checked once per tick;
// the sleep between ticks is not interrupted.
func (l *Loop) Run(ctx context.Context) error {
	if !l.quad.Calibrated() {
		return ErrNotCalibrated
	}
	debug.Summary(fmt.Sprintf("Flight loop: %v per tick, motors every %d ticks", l.interval, l.subdivision))
	for {
		if err := ctx.Err(); err != nil {
			debug.Info("Flight loop stopped after %d ticks", l.tick)
			return err
		}
		l.Tick()
		l.sleep(l.interval)
	}
}

// Tick runs one loop iteration: sensors on motor ticks, sticks on every
// tick, duties pushed on motor ticks, telemetry always.
func (l *Loop) Tick() {
	motorTick := l.tick%l.subdivision == 0

	if motorTick {
		if s, err := l.sensor.Read(); err != nil {
			debug.Error(fmt.Errorf("tick %d: imu: %w", l.tick, err))
		} else {
			l.sample = s
		}
		l.quad.SetAcc(l.sample.Accel)
		l.quad.SetGyro(l.sample.Gyro)
	}

	l.readSticks()
	l.quad.SetSticks(l.stick)

	if motorTick {
		l.duties = l.quad.Duties()
		if err := l.motors.Push(l.duties); err != nil {
			for _, e := range multierr.Errors(err) {
				debug.Error(fmt.Errorf("tick %d: %w", l.tick, e))
			}
		}
		debug.Duties(l.tick, l.duties)
	}

	l.recorder.Record(telemetry.Frame{
		Tick:        l.tick,
		Time:        l.now(),
		Acc:         l.sample.Accel,
		Gyro:        l.sample.Gyro,
		Temperature: l.sample.Temperature,
		Sticks:      l.stick,
		Duties:      l.duties,
	})
	l.tick++
}

// readSticks keeps the previous sticks on a transient read error and
// switches to the failsafe sticks while the receiver signal is lost.
func (l *Loop) readSticks() {
	s, err := l.sticks.ReadSticks()
	switch {
	case err == nil:
		if l.signalLost {
			debug.Info("tick %d: receiver signal back", l.tick)
			l.signalLost = false
		}
		l.stick = s
	case errors.Is(err, rc.ErrNoSignal):
		if !l.signalLost {
			debug.Error(fmt.Errorf("tick %d: %w, failsafe sticks %v", l.tick, err, l.failsafe))
			l.signalLost = true
		}
		l.stick = l.failsafe
	default:
		debug.Error(fmt.Errorf("tick %d: sticks: %w", l.tick, err))
	}
}

// Ticks returns how many ticks have run.
func (l *Loop) Ticks() int {
	return l.tick
}

// Duties returns the last computed duties.
func (l *Loop) Duties() [4]int {
	return l.duties
}
