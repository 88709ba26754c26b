package flight

import (
	"fmt"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/logic/filter"
)

const (
	// StickWindow is the moving-average window applied to each stick axis.
	StickWindow = 11

	// Tilt thresholds on the acceleration reading, g x100.
	tiltSmall = 15
	tiltLarge = 30
)

// Config holds the construction-time parameters of a Controller.
type Config struct {
	Role       Role
	Sticks     [3]StickRange // roll, pitch, throttle
	Motor      MotorRange
	SpikeLimit int // per-axis acceleration clamp, g x100. 0 = no clamp.
}

// Controller computes the duty of one rotor. The law is incremental:
// every step adds a delta to the duty left by the previous tick, and
// RangeProtect bounds the result.
type Controller struct {
	role       Role
	axes       AxisConfig
	motor      MotorRange
	spikeLimit int

	low, high [3]int // 33% and 66% stick levels per axis

	step1, step5, step10 int // 1, 5 and 10 permille of the duty span

	acc    [3]int
	gyro   [3]int
	sticks [3]*filter.MovingAverage

	thresholds Thresholds
	duty       int
}

// NewController validates cfg and returns a controller whose duty starts
// at the motor minimum.
func NewController(cfg Config) (*Controller, error) {
	axes, err := cfg.Role.Axes()
	if err != nil {
		return nil, err
	}
	for i, r := range cfg.Sticks {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %s stick: %w", cfg.Role, Axis(i), err)
		}
	}
	if err := cfg.Motor.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Role, err)
	}

	c := &Controller{
		role:       cfg.Role,
		axes:       axes,
		motor:      cfg.Motor,
		spikeLimit: cfg.SpikeLimit,
		duty:       cfg.Motor.Min,
	}
	for i, r := range cfg.Sticks {
		c.low[i] = r.Level(33)
		c.high[i] = r.Level(66)
		c.sticks[i] = filter.NewMovingAverage(StickWindow)
	}
	c.step1 = cfg.Motor.Permille()
	c.step5 = c.step1 * 5
	c.step10 = c.step1 * 10

	return c, nil
}

// Role returns the rotor role.
func (c *Controller) Role() Role { return c.role }

// Motor returns the motor duty range.
func (c *Controller) Motor() MotorRange { return c.motor }

// Duty returns the current duty without advancing the law.
func (c *Controller) Duty() int { return c.duty }

// Acc returns the latest acceleration, g x100.
func (c *Controller) Acc() [3]int { return c.acc }

// Gyro returns the latest angular rate.
func (c *Controller) Gyro() [3]int { return c.gyro }

// Thresholds returns the calibrated thresholds.
func (c *Controller) Thresholds() Thresholds { return c.thresholds }

// SetAcc stores an acceleration sample given in g. Each axis is scaled by
// 100, truncated, and clamped to the spike limit.
func (c *Controller) SetAcc(acc [3]float64) {
	c.acc = Scale(acc)
	if c.spikeLimit <= 0 {
		return
	}
	for i, v := range c.acc {
		if v > c.spikeLimit {
			c.acc[i] = c.spikeLimit
		} else if v < -c.spikeLimit {
			c.acc[i] = -c.spikeLimit
		}
	}
}

// SetGyro stores an angular-rate sample, truncated to integers.
func (c *Controller) SetGyro(gyro [3]float64) {
	for i, v := range gyro {
		c.gyro[i] = int(v)
	}
}

// SetSticks pushes one stick sample per axis into its moving average.
func (c *Controller) SetSticks(sticks [3]int) {
	for i, v := range sticks {
		c.sticks[i].Update(v)
	}
}

// Sticks returns the smoothed stick values.
func (c *Controller) Sticks() [3]int {
	var v [3]int
	for i, ma := range c.sticks {
		v[i] = ma.Average()
	}
	return v
}

// Calibrate installs the threshold bundle used by FallProtect.
func (c *Controller) Calibrate(t Thresholds) {
	c.thresholds = t
}

// Calibrated reports whether both calibration references are set.
func (c *Controller) Calibrated() bool {
	return c.thresholds.Complete()
}

// Reset returns the duty to the motor minimum and drops the stick history.
// Calibration thresholds are kept.
func (c *Controller) Reset() {
	c.duty = c.motor.Min
	for _, ma := range c.sticks {
		ma.Reset()
	}
}

// AccSum returns the squared magnitude of the latest acceleration.
func (c *Controller) AccSum() int {
	return SquaredMagnitude(c.acc)
}

// Power applies the base throttle step: one 10 permille step down below
// the 33% throttle level, up above the 66% level.
func (c *Controller) Power() int {
	throttle := c.sticks[Throttle].Average()
	switch {
	case throttle < c.low[Throttle]:
		c.duty -= c.step10
	case throttle > c.high[Throttle]:
		c.duty += c.step10
	}
	return c.duty
}

// Left applies the roll correction of a left-side rotor.
func (c *Controller) Left() int {
	c.duty += c.tilt(-c.acc[1])
	return c.duty
}

// Right applies the roll correction of a right-side rotor.
func (c *Controller) Right() int {
	c.duty += c.tilt(c.acc[1])
	return c.duty
}

// Front applies the pitch correction of a front rotor.
func (c *Controller) Front() int {
	c.duty += c.tilt(-c.acc[0])
	return c.duty
}

// Back applies the pitch correction of a back rotor.
func (c *Controller) Back() int {
	c.duty += c.tilt(c.acc[0])
	return c.duty
}

// tilt returns the duty delta for a signed acceleration reading.
func (c *Controller) tilt(v int) int {
	switch {
	case v > tiltLarge:
		return c.step1
	case v > tiltSmall:
		return 1
	case v < -tiltLarge:
		return -c.step1
	case v < -tiltSmall:
		return -1
	}
	return 0
}

// FallProtect raises the duty when the measured acceleration drops below
// the baseline fractions, and lowers it on an uncommanded climb beyond the
// escape-gravity fractions. Branches whose reference is not calibrated are
// skipped.
func (c *Controller) FallProtect() int {
	sum := c.AccSum()
	t := c.thresholds

	if t.Baseline > 0 {
		switch {
		case sum < t.Base30:
			c.duty += c.step10
		case sum < t.Base60:
			c.duty += c.step5
		case sum < t.Base80:
			c.duty += c.step1
		case sum < t.Base90:
			c.duty++
		}
	}

	if t.Escape > 0 && c.sticks[Throttle].Average() < c.high[Throttle] {
		switch {
		case sum > t.Escape130:
			c.duty -= c.step1
		case sum > t.Escape110:
			c.duty--
		}
	}
	return c.duty
}

// RangeProtect clamps the duty into the motor range.
func (c *Controller) RangeProtect() int {
	c.duty = c.motor.Clamp(c.duty)
	return c.duty
}

// Apply runs the correction named by d.
func (c *Controller) Apply(d Direction) int {
	switch d {
	case Left:
		return c.Left()
	case Right:
		return c.Right()
	case Front:
		return c.Front()
	case Back:
		return c.Back()
	}
	return c.duty
}

// MotorDuty advances the law by one motor tick: power, the role's lateral
// then longitudinal correction, fall protection, and the range clamp.
func (c *Controller) MotorDuty() int {
	c.Power()
	c.Apply(c.axes.Lateral)
	c.Apply(c.axes.Longitudinal)
	c.FallProtect()
	c.RangeProtect()
	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("%s: duty=%d acc=%v sticks=%v", c.role, c.duty, c.acc, c.Sticks())
	}
	return c.duty
}

// Scale converts an acceleration in g to truncated g x100 integers.
func Scale(acc [3]float64) [3]int {
	var v [3]int
	for i, a := range acc {
		v[i] = int(a * 100)
	}
	return v
}

// SquaredMagnitude returns x² + y² + z².
func SquaredMagnitude(v [3]int) int {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}
