package flight

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStickRange is returned when a stick range table is malformed.
	ErrInvalidStickRange = errors.New("invalid stick range")
	// ErrInvalidMotorRange is returned when a motor duty range is malformed.
	ErrInvalidMotorRange = errors.New("invalid motor range")
)

// Axis indexes the three stick axes.
type Axis int

const (
	Roll Axis = iota
	Pitch
	Throttle
)

func (a Axis) String() string {
	switch a {
	case Roll:
		return "roll"
	case Pitch:
		return "pitch"
	case Throttle:
		return "throttle"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// StickRange is the [min, mid, max] span reported by one stick axis.
type StickRange struct {
	Min, Mid, Max int
}

// StickRangeFrom builds a StickRange from a [min, mid, max] triple.
func StickRangeFrom(v [3]int) StickRange {
	return StickRange{Min: v[0], Mid: v[1], Max: v[2]}
}

// Validate rejects ranges with min >= max or a mid outside [min, max].
func (r StickRange) Validate() error {
	if r.Min >= r.Max {
		return fmt.Errorf("%w: min %d >= max %d", ErrInvalidStickRange, r.Min, r.Max)
	}
	if r.Mid < r.Min || r.Mid > r.Max {
		return fmt.Errorf("%w: mid %d outside [%d, %d]", ErrInvalidStickRange, r.Mid, r.Min, r.Max)
	}
	return nil
}

// Level returns the stick value at pct percent of the range, truncated.
func (r StickRange) Level(pct int) int {
	return r.Min + (r.Max-r.Min)*pct/100
}

// MotorRange is the duty configuration of one ESC.
// Min and Max bound the flight duty, Init is the arming duty and
// Limit the absolute ceiling the actuator accepts.
type MotorRange struct {
	Min, Max, Init, Limit int
}

// MotorRangeFrom builds a MotorRange from a [min, max, init, limit] quad.
func MotorRangeFrom(v [4]int) MotorRange {
	return MotorRange{Min: v[0], Max: v[1], Init: v[2], Limit: v[3]}
}

// Validate rejects negative duties, min >= max, and max or init above limit.
func (r MotorRange) Validate() error {
	if r.Min < 0 || r.Init < 0 {
		return fmt.Errorf("%w: negative duty (min %d, init %d)", ErrInvalidMotorRange, r.Min, r.Init)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("%w: min %d >= max %d", ErrInvalidMotorRange, r.Min, r.Max)
	}
	if r.Max > r.Limit {
		return fmt.Errorf("%w: max %d > limit %d", ErrInvalidMotorRange, r.Max, r.Limit)
	}
	if r.Init > r.Max {
		return fmt.Errorf("%w: init %d > max %d", ErrInvalidMotorRange, r.Init, r.Max)
	}
	return nil
}

// Permille returns one thousandth of the duty span, truncated.
func (r MotorRange) Permille() int {
	return (r.Max - r.Min) / 1000
}

// Clamp bounds v to [Min, Max].
func (r MotorRange) Clamp(v int) int {
	if v > r.Max {
		v = r.Max
	}
	if v < r.Min {
		v = r.Min
	}
	return v
}
