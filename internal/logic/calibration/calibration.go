package calibration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/hw/imu"
	"github.com/picodrone/picodrone/internal/logic/flight"
)

// ErrTooFewSamples is returned when a routine cannot produce a reference
// from the requested number of samples.
var ErrTooFewSamples = errors.New("too few calibration samples")

// Pusher sends four duty values to the motors.
type Pusher interface {
	Push(duties [4]int) error
}

// Ramper lowers the motors to a target duty.
type Ramper interface {
	RampDown(ctx context.Context, targets [4]int, step int, interval time.Duration) error
}

// Options controls the sampling cadence shared by both routines.
type Options struct {
	Samples  int
	Interval time.Duration
	Sleep    func(time.Duration) // defaults to time.Sleep
}

func (o Options) sleep(d time.Duration) {
	if o.Sleep != nil {
		o.Sleep(d)
		return
	}
	time.Sleep(d)
}

// BaselineResult is the at-rest acceleration reference.
type BaselineResult struct {
	Mean   [3]int  // per-axis truncated mean, g x100
	AccSum int     // squared magnitude of Mean
	Spread float64 // standard deviation of the per-sample squared magnitudes
}

// Baseline samples the sensor with the motors idle and returns the
// squared magnitude of the averaged acceleration vector.
func Baseline(ctx context.Context, sensor imu.Sensor, opt Options) (BaselineResult, error) {
	var res BaselineResult
	if opt.Samples < 1 {
		return res, ErrTooFewSamples
	}

	debug.Section("Baseline calibration")
	var sum [3]int
	mags := make([]float64, 0, opt.Samples)
	for i := 0; i < opt.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, err := sensor.Read()
		if err != nil {
			return res, fmt.Errorf("baseline sample %d: %w", i, err)
		}
		v := flight.Scale(s.Accel)
		for j := range sum {
			sum[j] += v[j]
		}
		mags = append(mags, float64(flight.SquaredMagnitude(v)))
		debug.Trace("baseline %d: %v", i, v)
		opt.sleep(opt.Interval)
	}

	for j := range sum {
		res.Mean[j] = sum[j] / opt.Samples
	}
	res.AccSum = flight.SquaredMagnitude(res.Mean)
	if len(mags) > 1 {
		_, res.Spread = stat.MeanStdDev(mags, nil)
	}

	debug.Info("Base G: %d (mean=%v, spread=%.1f)", res.AccSum, res.Mean, res.Spread)
	return res, nil
}

// EscapeSample is one tick of the escape-gravity run.
type EscapeSample struct {
	Index       int `json:"i"`
	Az          int `json:"az"`
	DeltaAz     int `json:"delta_az"`
	AccSum      int `json:"acc_sum"`
	DeltaAccSum int `json:"delta_acc_sum"`
}

// EscapeOptions adds the fixed stick profile and report size.
type EscapeOptions struct {
	Options
	Sticks [3]int // roll, pitch, throttle fed instead of live input
	Top    int    // number of largest-delta samples kept in the report
}

// EscapeResult is the escape-gravity reference and its supporting samples.
type EscapeResult struct {
	AccSum int
	Top    []EscapeSample
}

// EscapeGravity drives the motors with a fixed stick profile and returns
// the acceleration magnitude at the sharpest rise, where thrust first
// overcomes gravity. The first tick has no predecessor and is not ranked.
func EscapeGravity(ctx context.Context, sensor imu.Sensor, quad flight.Quad, motors Pusher, opt EscapeOptions) (EscapeResult, error) {
	var res EscapeResult
	if opt.Samples < 2 {
		return res, ErrTooFewSamples
	}
	if opt.Top < 1 {
		opt.Top = 1
	}

	debug.Section("Escape gravity calibration")
	var prev [3]int
	data := make([]EscapeSample, 0, opt.Samples-1)
	for i := 0; i < opt.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, err := sensor.Read()
		if err != nil {
			return res, fmt.Errorf("escape sample %d: %w", i, err)
		}
		cur := flight.Scale(s.Accel)
		sample := EscapeSample{
			Index:       i,
			Az:          cur[2],
			DeltaAz:     cur[2] - prev[2],
			AccSum:      flight.SquaredMagnitude(cur),
			DeltaAccSum: flight.SquaredMagnitude(cur) - flight.SquaredMagnitude(prev),
		}
		if i > 0 {
			data = append(data, sample)
		}
		prev = cur

		quad.SetAcc(s.Accel)
		quad.SetGyro([3]float64{})
		quad.SetSticks(opt.Sticks)
		duties := quad.Duties()
		if err := motors.Push(duties); err != nil {
			return res, fmt.Errorf("escape tick %d: %w", i, err)
		}
		debug.Duties(i, duties)
		opt.sleep(opt.Interval)
	}

	sort.SliceStable(data, func(a, b int) bool {
		return data[a].DeltaAccSum > data[b].DeltaAccSum
	})
	res.Top = data[:min(opt.Top, len(data))]
	res.AccSum = res.Top[0].AccSum

	for _, s := range res.Top {
		debug.Info("  %+v", s)
	}
	debug.Info("Escape G: %d", res.AccSum)
	return res, nil
}

// SpinDown ramps the motors back to their minimum after escape-gravity
// calibration and resets every controller, so the flight loop starts
// from idle with calibrated thresholds.
func SpinDown(ctx context.Context, quad flight.Quad, motors Ramper, step int, interval time.Duration) error {
	debug.Info("Spinning down")
	if err := motors.RampDown(ctx, quad.Minimums(), step, interval); err != nil {
		return fmt.Errorf("spin down: %w", err)
	}
	quad.Reset()
	return nil
}
