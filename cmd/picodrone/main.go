package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/picodrone/picodrone/internal/config"
	"github.com/picodrone/picodrone/internal/debug"
	"github.com/picodrone/picodrone/internal/hw/esc"
	"github.com/picodrone/picodrone/internal/hw/gpio"
	"github.com/picodrone/picodrone/internal/hw/imu"
	"github.com/picodrone/picodrone/internal/hw/led"
	"github.com/picodrone/picodrone/internal/hw/rc"
	"github.com/picodrone/picodrone/internal/logic/calibration"
	"github.com/picodrone/picodrone/internal/logic/flight"
	"github.com/picodrone/picodrone/internal/logic/loop"
	"github.com/picodrone/picodrone/internal/logic/motors"
	"github.com/picodrone/picodrone/internal/telemetry"
	"github.com/picodrone/picodrone/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start telemetry web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	// Web telemetry is optional; when enabled the debug log is mirrored to it.
	var handlers *web.Handlers
	var hub *web.Hub
	if port := webPort.port(); port > 0 {
		hub = web.NewHub()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.StatusWriter(hub)))
		handlers = web.NewHandlers(hub, configSummary(cfg))
		srv := web.NewServer(fmt.Sprintf(":%d", port), handlers)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	status, err := led.NewStatus(gpioDriver, cfg.Defaults.LEDPin)
	if err != nil {
		log.Fatalf("init status LED failed: %v", err)
	}

	debug.Step(2, "Building flight controllers")
	fcCfgs, motorCfgs, err := quadConfigs(cfg)
	if err != nil {
		log.Fatalf("motor configuration: %v", err)
	}
	quad, err := flight.NewQuad(fcCfgs)
	if err != nil {
		log.Fatalf("flight controllers: %v", err)
	}

	debug.Step(3, "Arming ESCs")
	pwm, closePWM, err := newPWM(cfg, gpioDriver)
	if err != nil {
		log.Fatalf("init PWM output failed: %v", err)
	}
	defer closePWM()
	escs, err := newESCs(pwm, cfg, motorCfgs)
	if err != nil {
		log.Fatalf("init ESCs failed: %v", err)
	}
	if err := armAll(escs, quad.Minimums()); err != nil {
		log.Fatalf("arming ESCs failed: %v", err)
	}
	var actuators [4]motors.Actuator
	for i, e := range escs {
		actuators[i] = e
	}
	motorSet := motors.NewSet(actuators, quad.Minimums())
	defer func() {
		if err := motorSet.Stop(); err != nil {
			log.Printf("stopping motors failed: %v", err)
		}
	}()

	debug.Step(4, "Initializing IMU")
	sensor, closeSensor, err := newSensor(cfg)
	if err != nil {
		log.Fatalf("init IMU failed: %v", err)
	}
	defer closeSensor()

	debug.Step(5, "Initializing receiver")
	sticks, err := newSticks(ctx, cfg)
	if err != nil {
		log.Fatalf("init receiver failed: %v", err)
	}

	debug.Step(6, "Initializing telemetry")
	recorder, err := newRecorder(cfg, hub)
	if err != nil {
		log.Fatalf("init telemetry failed: %v", err)
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.Printf("closing telemetry failed: %v", err)
		}
	}()

	logLED(status.On())
	report, err := calibrate(ctx, cfg, sensor, quad, motorSet)
	if handlers != nil {
		handlers.SetReport(report)
	}
	if err != nil {
		log.Printf("calibration failed: %v", err)
		return
	}
	logLED(status.Off())

	l, err := loop.New(sensor, sticks, quad, motorSet, recorder, loop.Params{
		Interval:    cfg.TickInterval(),
		Subdivision: cfg.MotorSubdivision(),
		Failsafe:    stickMids(cfg),
	})
	if err != nil {
		log.Fatalf("control loop: %v", err)
	}
	logLED(status.Blink(3, 200*time.Millisecond))
	if err := l.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("control loop: %v", err)
	}
	debug.Value("Ticks flown", l.Ticks())
}

func logLED(err error) {
	if err != nil {
		log.Printf("status LED: %v", err)
	}
}

// calibrate runs the baseline and escape-gravity routines, installs the
// thresholds, and spins the motors back down.
func calibrate(ctx context.Context, cfg *config.Config, sensor imu.Sensor, quad flight.Quad, m *motors.Set) (web.CalibrationReport, error) {
	var report web.CalibrationReport
	opt := calibration.Options{
		Samples:  cfg.Calibration.Samples,
		Interval: cfg.CalibrationInterval(),
	}

	debug.Summary("Calibration")
	base, err := calibration.Baseline(ctx, sensor, opt)
	if err != nil {
		return report, err
	}
	report.Baseline = &base
	quad.Calibrate(flight.NewThresholds(base.AccSum, 0))

	escape, err := calibration.EscapeGravity(ctx, sensor, quad, m, calibration.EscapeOptions{
		Options: opt,
		Sticks:  cfg.Calibration.EscapeSticks,
		Top:     cfg.Calibration.EscapeTop,
	})
	if err != nil {
		// Never leave the motors spinning after an aborted run.
		return report, multierr.Append(err, calibration.SpinDown(context.Background(), quad, m,
			cfg.Calibration.SpinDownStep, cfg.SpinDownInterval()))
	}
	report.Escape = &escape

	thresholds := flight.NewThresholds(base.AccSum, escape.AccSum)
	quad.Calibrate(thresholds)
	report.Thresholds = thresholds
	report.Calibrated = quad.Calibrated()
	debug.PrintStruct("Thresholds", thresholds)

	if err := calibration.SpinDown(ctx, quad, m, cfg.Calibration.SpinDownStep, cfg.SpinDownInterval()); err != nil {
		return report, err
	}
	return report, nil
}

// quadConfigs orders the configured motors by role and builds one
// controller configuration per rotor.
func quadConfigs(cfg *config.Config) ([4]flight.Config, [4]config.MotorConfig, error) {
	var fcs [4]flight.Config
	var mcs [4]config.MotorConfig
	if len(cfg.Motors) != 4 {
		return fcs, mcs, fmt.Errorf("exactly 4 motors required, got %d", len(cfg.Motors))
	}

	var sticks [3]flight.StickRange
	for i, r := range cfg.StickTable() {
		sticks[i] = flight.StickRangeFrom(r)
	}
	var seen [4]bool
	for _, m := range cfg.Motors {
		role, err := flight.ParseRole(m.Role)
		if err != nil {
			return fcs, mcs, err
		}
		if seen[role] {
			return fcs, mcs, fmt.Errorf("duplicate rotor role %s", role)
		}
		seen[role] = true
		fcs[role] = flight.Config{
			Role:       role,
			Sticks:     sticks,
			Motor:      flight.MotorRangeFrom(m.Range),
			SpikeLimit: cfg.IMU.SpikeLimit,
		}
		mcs[role] = m
	}
	return fcs, mcs, nil
}

// newPWM returns the ESC signal output. The mock GPIO driver and the
// rpio driver serve it directly; a PCA9685 board is opened on its bus.
func newPWM(cfg *config.Config, g gpio.Driver) (gpio.PWMOutput, func(), error) {
	if cfg.Defaults.MockGPIO || cfg.PWM.Driver == config.PWMDriverRPIO {
		return g, func() {}, nil
	}
	board, err := gpio.OpenPCA9685(cfg.PWM.Bus, byte(cfg.PWM.Address), cfg.Defaults.PWMFreqHz)
	if err != nil {
		return nil, nil, err
	}
	return board, func() {
		if err := board.Close(); err != nil {
			log.Printf("closing PCA9685 failed: %v", err)
		}
	}, nil
}

func newESCs(g gpio.PWMOutput, cfg *config.Config, mcs [4]config.MotorConfig) ([4]*esc.ESC, error) {
	var escs [4]*esc.ESC
	for i, m := range mcs {
		e, err := esc.NewESC(g, esc.Config{
			Pin:      m.Pin,
			FreqHz:   cfg.Defaults.PWMFreqHz,
			Init:     m.Range[2],
			Limit:    m.Range[3],
			ArmDelay: cfg.ArmDelay(),
		})
		if err != nil {
			return escs, fmt.Errorf("%s: %w", m.Role, err)
		}
		debug.Verbose("ESC %s on %s output %d", m.Role, cfg.PWM.Driver, m.Pin)
		escs[i] = e
	}
	return escs, nil
}

// armAll arms every ESC at once so they share one arming delay.
func armAll(escs [4]*esc.ESC, idle [4]int) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var err error
	for i, e := range escs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if aerr := e.Arm(idle[i]); aerr != nil {
				mu.Lock()
				err = multierr.Append(err, aerr)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return err
}

func newSensor(cfg *config.Config) (imu.Sensor, func(), error) {
	if cfg.IMU.Mock {
		debug.Info("Using MOCK IMU (level, at rest)")
		return imu.NewLevel(), func() {}, nil
	}
	m, err := imu.OpenMPU6050(cfg.IMU.Bus, byte(cfg.IMU.Address), cfg.IMU.AccelRangeG)
	if err != nil {
		return nil, nil, err
	}
	return m, func() {
		if err := m.Close(); err != nil {
			log.Printf("closing IMU failed: %v", err)
		}
	}, nil
}

func newSticks(ctx context.Context, cfg *config.Config) (rc.StickReader, error) {
	if cfg.RC.Mock {
		debug.Info("Using MOCK receiver (sticks at mid, throttle at mid)")
		return &rc.Fixed{Values: stickMids(cfg)}, nil
	}
	port, err := rc.OpenSerial(rc.SerialConfig{Port: cfg.RC.Port, BaudRate: cfg.RC.BaudRate})
	if err != nil {
		return nil, err
	}
	dec := rc.NewDecoder(port, cfg.RCTimeout())
	go func() {
		defer port.Close()
		if err := dec.Serve(ctx); err != nil && ctx.Err() == nil {
			debug.Error(fmt.Errorf("receiver: %w", err))
		}
		frames, rejected := dec.Stats()
		debug.Info("Receiver stopped: %d frames, %d rejected", frames, rejected)
	}()
	return rc.NewSticks(dec, cfg.RC.Channels)
}

func stickMids(cfg *config.Config) [3]int {
	var mids [3]int
	for i, r := range cfg.StickTable() {
		mids[i] = r[1]
	}
	return mids
}

func newRecorder(cfg *config.Config, hub *web.Hub) (*telemetry.Async, error) {
	sinks := []telemetry.Sink{telemetry.LogSink{}}
	if cfg.Telemetry.CSVDir != "" {
		name := telemetry.SessionName(time.Now())
		csvSink, err := telemetry.NewCSVSink(osfs.New(cfg.Telemetry.CSVDir), name)
		if err != nil {
			return nil, err
		}
		debug.Info("Recording flight data to %s", filepath.Join(cfg.Telemetry.CSVDir, name))
		sinks = append(sinks, csvSink)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	return telemetry.NewAsync(cfg.Telemetry.BufferSize, sinks...), nil
}

// configSummary is the part of the configuration shown on GET /config.
func configSummary(cfg *config.Config) map[string]any {
	return map[string]any{
		"sticks":      cfg.Sticks,
		"motors":      cfg.Motors,
		"pwm":         cfg.PWM,
		"loop":        cfg.Loop,
		"calibration": cfg.Calibration,
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
