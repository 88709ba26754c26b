package motors

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/picodrone/picodrone/internal/debug"
)

// Actuator accepts a duty value for one motor.
type Actuator interface {
	SetDuty(duty int) error
}

// Set drives the four motors of the frame, in role order
// (front right, front left, back left, back right).
// It's the layer between the control law and the ESC outputs.
type Set struct {
	actuators [4]Actuator
	last      [4]int
	sleep     func(time.Duration)
}

// NewSet groups four actuators. initial is the duty each one currently holds.
func NewSet(actuators [4]Actuator, initial [4]int) *Set {
	return &Set{
		actuators: actuators,
		last:      initial,
		sleep:     time.Sleep,
	}
}

// Push writes one duty per motor. A failing motor does not prevent the
// others from being written; all failures are returned together.
func (s *Set) Push(duties [4]int) error {
	var err error
	for i, a := range s.actuators {
		if e := a.SetDuty(duties[i]); e != nil {
			err = multierr.Append(err, fmt.Errorf("motor %d: %w", i, e))
			continue
		}
		s.last[i] = duties[i]
	}
	return err
}

// Last returns the last duty accepted by each motor.
func (s *Set) Last() [4]int {
	return s.last
}

// RampDown lowers every motor towards targets by at most step per
// interval. Motors already at or below their target are left alone.
func (s *Set) RampDown(ctx context.Context, targets [4]int, step int, interval time.Duration) error {
	if step <= 0 {
		return s.Push(targets)
	}
	for {
		next := s.last
		done := true
		for i := range next {
			if next[i] <= targets[i] {
				continue
			}
			next[i] -= step
			if next[i] < targets[i] {
				next[i] = targets[i]
			}
			done = false
		}
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		debug.Verbose("Motors: ramp %v", next)
		if err := s.Push(next); err != nil {
			return err
		}
		s.sleep(interval)
	}
}

// Stop writes zero to every motor.
func (s *Set) Stop() error {
	debug.Info("Motors: stop")
	return s.Push([4]int{})
}
