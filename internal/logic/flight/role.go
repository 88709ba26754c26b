package flight

import "fmt"

// Role identifies the rotor position a controller drives.
type Role int

const (
	FrontRight Role = iota
	FrontLeft
	BackLeft
	BackRight
)

// Roles lists every rotor role in motor index order.
var Roles = [4]Role{FrontRight, FrontLeft, BackLeft, BackRight}

func (r Role) String() string {
	switch r {
	case FrontRight:
		return "front_right"
	case FrontLeft:
		return "front_left"
	case BackLeft:
		return "back_left"
	case BackRight:
		return "back_right"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole maps a configuration name to its Role.
func ParseRole(name string) (Role, error) {
	for _, r := range Roles {
		if r.String() == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown rotor role %q", name)
}

// Direction names one of the four directional corrections.
type Direction int

const (
	Left Direction = iota + 1
	Right
	Front
	Back
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Front:
		return "front"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// AxisConfig selects the lateral (Left or Right) and longitudinal
// (Front or Back) correction a rotor applies each motor tick.
type AxisConfig struct {
	Lateral      Direction
	Longitudinal Direction
}

// Axes returns the axis configuration of the role.
func (r Role) Axes() (AxisConfig, error) {
	switch r {
	case FrontRight:
		return AxisConfig{Lateral: Right, Longitudinal: Front}, nil
	case FrontLeft:
		return AxisConfig{Lateral: Left, Longitudinal: Front}, nil
	case BackLeft:
		return AxisConfig{Lateral: Left, Longitudinal: Back}, nil
	case BackRight:
		return AxisConfig{Lateral: Right, Longitudinal: Back}, nil
	default:
		return AxisConfig{}, fmt.Errorf("unknown rotor role %d", int(r))
	}
}
