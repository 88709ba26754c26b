package imu

import "errors"

// ErrNotReady is returned by a sensor that was closed or never woke up.
var ErrNotReady = errors.New("imu not ready")

// Sample is one reading of the inertial sensor.
type Sample struct {
	Accel       [3]float64 // g
	Gyro        [3]float64 // deg/s
	Temperature float64    // degC
}

// Sensor is anything that yields inertial samples.
type Sensor interface {
	Read() (Sample, error)
}

// Static is a sensor that always reports the same sample. Used when
// no MPU-6050 is wired, e.g. on a development machine.
type Static struct {
	Sample Sample
}

// NewLevel returns a Static sensor at rest: 1 g on z, no rotation.
func NewLevel() *Static {
	return &Static{Sample: Sample{Accel: [3]float64{0, 0, 1}, Temperature: 25}}
}

func (s *Static) Read() (Sample, error) {
	return s.Sample, nil
}

// Replay returns a fixed sequence of samples, then keeps repeating the
// last one. An empty Replay behaves like NewLevel.
type Replay struct {
	Samples []Sample
	next    int
}

func (r *Replay) Read() (Sample, error) {
	if len(r.Samples) == 0 {
		return NewLevel().Sample, nil
	}
	s := r.Samples[r.next]
	if r.next < len(r.Samples)-1 {
		r.next++
	}
	return s, nil
}

