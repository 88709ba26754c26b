package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/picodrone/picodrone/internal/config"
	"github.com/picodrone/picodrone/internal/hw/gpio"
	"github.com/picodrone/picodrone/internal/hw/imu"
	"github.com/picodrone/picodrone/internal/logic/flight"
	"github.com/picodrone/picodrone/internal/logic/motors"
)

// loadTestConfig loads the shipped configuration with every delay
// shortened to a millisecond.
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("load default config: %v", err)
	}
	cfg.Calibration.IntervalMs = 1
	cfg.Calibration.ArmDelayMs = 1
	cfg.Calibration.SpinDownIntervalMs = 1
	return cfg
}

// ---------- quadConfigs ----------

func TestQuadConfigs_OrdersByRole(t *testing.T) {
	cfg := loadTestConfig(t)
	// shuffle the configured order
	cfg.Motors[0], cfg.Motors[3] = cfg.Motors[3], cfg.Motors[0]

	fcs, mcs, err := quadConfigs(cfg)
	if err != nil {
		t.Fatalf("quadConfigs: %v", err)
	}
	for i, r := range flight.Roles {
		if fcs[i].Role != r {
			t.Errorf("fcs[%d].Role = %v, want %v", i, fcs[i].Role, r)
		}
		if mcs[i].Role != r.String() {
			t.Errorf("mcs[%d].Role = %q, want %q", i, mcs[i].Role, r)
		}
	}
	if fcs[0].Motor != (flight.MotorRange{Min: 110, Max: 7800, Init: 50, Limit: 8500}) {
		t.Errorf("front right motor = %+v", fcs[0].Motor)
	}
	if fcs[3].Sticks[flight.Throttle] != (flight.StickRange{Min: 0, Mid: 4925, Max: 9920}) {
		t.Errorf("throttle range = %+v", fcs[3].Sticks[flight.Throttle])
	}
	if fcs[2].SpikeLimit != 190 {
		t.Errorf("SpikeLimit = %d, want 190", fcs[2].SpikeLimit)
	}
}

func TestQuadConfigs_ClampsSaturatedAccel(t *testing.T) {
	cfg := loadTestConfig(t)
	fcs, _, err := quadConfigs(cfg)
	if err != nil {
		t.Fatalf("quadConfigs: %v", err)
	}
	quad, err := flight.NewQuad(fcs)
	if err != nil {
		t.Fatalf("NewQuad: %v", err)
	}

	// A glitch at the +/-2 g rail of the shipped sensor range.
	quad.SetAcc([3]float64{-2, 2, 1.999})
	for i, c := range quad {
		if got := c.Acc(); got != [3]int{-190, 190, 190} {
			t.Errorf("controller %d acc = %v, want [-190 190 190]", i, got)
		}
	}
}

func TestNewPWM_MockUsesGPIODriver(t *testing.T) {
	cfg := loadTestConfig(t)
	drv := &gpio.MockDriver{}
	out, closePWM, err := newPWM(cfg, drv)
	if err != nil {
		t.Fatalf("newPWM: %v", err)
	}
	defer closePWM()
	if out != gpio.PWMOutput(drv) {
		t.Errorf("newPWM = %T, want the mock GPIO driver", out)
	}
}

func TestQuadConfigs_Rejects(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Motors[1].Role = "tail"
	if _, _, err := quadConfigs(cfg); err == nil {
		t.Error("expected error for unknown role")
	}

	cfg = loadTestConfig(t)
	cfg.Motors[1].Role = cfg.Motors[0].Role
	if _, _, err := quadConfigs(cfg); err == nil {
		t.Error("expected error for duplicate role")
	}

	cfg = loadTestConfig(t)
	cfg.Motors = cfg.Motors[:3]
	if _, _, err := quadConfigs(cfg); err == nil {
		t.Error("expected error for 3 motors")
	}
}

func TestStickMids(t *testing.T) {
	cfg := loadTestConfig(t)
	if got := stickMids(cfg); got != [3]int{4888, 5031, 4925} {
		t.Errorf("stickMids() = %v", got)
	}
}

// ---------- arming and calibration ----------

func TestArmAndCalibrate(t *testing.T) {
	cfg := loadTestConfig(t)
	fcs, mcs, err := quadConfigs(cfg)
	if err != nil {
		t.Fatalf("quadConfigs: %v", err)
	}
	quad, err := flight.NewQuad(fcs)
	if err != nil {
		t.Fatalf("NewQuad: %v", err)
	}

	escs, err := newESCs(&gpio.MockDriver{}, cfg, mcs)
	if err != nil {
		t.Fatalf("newESCs: %v", err)
	}
	if err := armAll(escs, quad.Minimums()); err != nil {
		t.Fatalf("armAll: %v", err)
	}
	var actuators [4]motors.Actuator
	for i, e := range escs {
		if e.Duty() != quad.Minimums()[i] {
			t.Errorf("esc %d duty = %d after arming, want %d", i, e.Duty(), quad.Minimums()[i])
		}
		actuators[i] = e
	}
	set := motors.NewSet(actuators, quad.Minimums())

	report, err := calibrate(context.Background(), cfg, imu.NewLevel(), quad, set)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if !report.Calibrated || !quad.Calibrated() {
		t.Error("quad should be calibrated")
	}
	if report.Baseline.AccSum != 10000 || report.Escape.AccSum != 10000 {
		t.Errorf("baseline = %d, escape = %d, want 10000 each", report.Baseline.AccSum, report.Escape.AccSum)
	}
	if set.Last() != quad.Minimums() {
		t.Errorf("motors = %v after spin-down, want %v", set.Last(), quad.Minimums())
	}
	if quad.Current() != quad.Minimums() {
		t.Errorf("controllers = %v after spin-down, want %v", quad.Current(), quad.Minimums())
	}
}

func TestNewRecorder_CSV(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Telemetry.CSVDir = t.TempDir()
	rec, err := newRecorder(cfg, nil)
	if err != nil {
		t.Fatalf("newRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.Telemetry.CSVDir, "flight-*.csv"))
	if len(matches) != 1 {
		t.Errorf("csv files = %v, want 1", matches)
	}
}

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\") error: %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("expected default port 8080, got %d", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"8080", 8080},
		{"1", 1},
		{"65535", 65535},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			w := &webPortFlag{defaultPort: 8080}
			if err := w.Set(tc.input); err != nil {
				t.Fatalf("Set(%q) error: %v", tc.input, err)
			}
			if w.port() != tc.want {
				t.Errorf("port() = %d, want %d", w.port(), tc.want)
			}
		})
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	for _, input := range []string{"0", "65536", "-1", "abc"} {
		w := &webPortFlag{defaultPort: 8080}
		if err := w.Set(input); err == nil {
			t.Errorf("Set(%q) should fail, got nil", input)
		}
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{val: 0}
	if s := w.String(); s != "0" {
		t.Errorf("String() = %q, want \"0\"", s)
	}
	w.val = 9090
	if s := w.String(); s != "9090" {
		t.Errorf("String() = %q, want \"9090\"", s)
	}
}
