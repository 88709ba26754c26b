package flight

import (
	"fmt"

	"go.uber.org/multierr"
)

// Quad holds the four rotor controllers in motor index order. They share
// every sensor and stick sample and are advanced sequentially.
type Quad [4]*Controller

// NewQuad builds the four controllers, reporting every invalid
// configuration at once.
func NewQuad(cfgs [4]Config) (Quad, error) {
	var q Quad
	var err error
	for i, cfg := range cfgs {
		c, cerr := NewController(cfg)
		if cerr != nil {
			err = multierr.Append(err, fmt.Errorf("motor %d: %w", i, cerr))
			continue
		}
		q[i] = c
	}
	if err != nil {
		return Quad{}, err
	}
	return q, nil
}

// SetAcc broadcasts an acceleration sample in g.
func (q Quad) SetAcc(acc [3]float64) {
	for _, c := range q {
		c.SetAcc(acc)
	}
}

// SetGyro broadcasts an angular-rate sample.
func (q Quad) SetGyro(gyro [3]float64) {
	for _, c := range q {
		c.SetGyro(gyro)
	}
}

// SetSticks broadcasts one stick sample per axis.
func (q Quad) SetSticks(sticks [3]int) {
	for _, c := range q {
		c.SetSticks(sticks)
	}
}

// Duties advances every controller by one motor tick.
func (q Quad) Duties() [4]int {
	var d [4]int
	for i, c := range q {
		d[i] = c.MotorDuty()
	}
	return d
}

// Current returns the duties without advancing the law.
func (q Quad) Current() [4]int {
	var d [4]int
	for i, c := range q {
		d[i] = c.Duty()
	}
	return d
}

// Minimums returns each motor's minimum duty.
func (q Quad) Minimums() [4]int {
	var d [4]int
	for i, c := range q {
		d[i] = c.Motor().Min
	}
	return d
}

// Calibrate installs the same thresholds on every controller.
func (q Quad) Calibrate(t Thresholds) {
	for _, c := range q {
		c.Calibrate(t)
	}
}

// Calibrated reports whether every controller has complete thresholds.
func (q Quad) Calibrated() bool {
	for _, c := range q {
		if c == nil || !c.Calibrated() {
			return false
		}
	}
	return true
}

// Reset returns every controller to its minimum duty.
func (q Quad) Reset() {
	for _, c := range q {
		c.Reset()
	}
}
