package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/picodrone/picodrone/internal/hw/gpio"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// Rotor role names accepted in motors[].role.
const (
	RoleFrontRight = "front_right"
	RoleFrontLeft  = "front_left"
	RoleBackLeft   = "back_left"
	RoleBackRight  = "back_right"
)

// ESC output drivers accepted in pwm.driver.
const (
	PWMDriverRPIO    = "rpio"    // Pi hardware PWM, two independent channels
	PWMDriverPCA9685 = "pca9685" // 16-channel I2C PWM board
)

// Accelerometer full-scale ranges, in g, supported by the MPU-6050.
var accelRanges = []int{2, 4, 8, 16}

// SticksConfig holds the [min, mid, max] range of each stick axis,
// as reported by the receiver after scaling.
type SticksConfig struct {
	Roll     [3]int `yaml:"roll"`
	Pitch    [3]int `yaml:"pitch"`
	Throttle [3]int `yaml:"throttle"`
}

// MotorConfig describes one ESC channel.
type MotorConfig struct {
	Role  string `yaml:"role"`  // front_right, front_left, back_left, back_right
	Pin   int    `yaml:"pin"`   // BCM pin (rpio) or board channel (pca9685)
	Range [4]int `yaml:"range"` // min, max, init, limit (duty units, 0-65535)
}

// PWMConfig selects how the four ESC signals are generated.
type PWMConfig struct {
	Driver  string `yaml:"driver"`  // rpio or pca9685
	Bus     int    `yaml:"bus"`     // I2C bus of the PCA9685
	Address int    `yaml:"address"` // I2C address of the PCA9685 (0x40)
}

// IMUConfig describes the inertial sensor.
type IMUConfig struct {
	Mock        bool `yaml:"mock"`          // use a stationary simulated sensor
	Bus         int  `yaml:"bus"`           // I2C bus number
	Address     int  `yaml:"address"`       // I2C address (0x68 for MPU-6050)
	AccelRangeG int  `yaml:"accel_range_g"` // accelerometer full scale: 2, 4, 8 or 16
	SpikeLimit  int  `yaml:"spike_limit"`   // per-axis acceleration clamp, g x100, below full scale
}

// RCConfig describes the pilot receiver.
type RCConfig struct {
	Mock      bool   `yaml:"mock"`       // use fixed centered sticks
	Port      string `yaml:"port"`       // serial device carrying iBus frames
	BaudRate  int    `yaml:"baud_rate"`  // 115200 for iBus
	Channels  [3]int `yaml:"channels"`   // receiver channel index for roll, pitch, throttle
	TimeoutMs int    `yaml:"timeout_ms"` // frame age after which the signal is considered lost
}

// LoopConfig holds the control loop cadence.
type LoopConfig struct {
	StickFreqHz    int `yaml:"stick_freq_hz"`     // tick rate, sticks read every tick
	MotorAdjFreqHz int `yaml:"motor_adj_freq_hz"` // duty recompute rate, divides stick_freq_hz
}

// CalibrationConfig holds the pre-flight calibration parameters.
type CalibrationConfig struct {
	Samples            int    `yaml:"samples"`               // samples per routine
	IntervalMs         int    `yaml:"interval_ms"`           // delay between samples
	EscapeSticks       [3]int `yaml:"escape_sticks"`         // fixed stick profile for escape gravity
	EscapeTop          int    `yaml:"escape_top"`            // largest-delta samples reported
	ArmDelayMs         int    `yaml:"arm_delay_ms"`          // ESC hold time at init duty
	SpinDownStep       int    `yaml:"spin_down_step"`        // duty decrement per spin-down step
	SpinDownIntervalMs int    `yaml:"spin_down_interval_ms"` // delay between spin-down steps
}

// TelemetryConfig controls flight data recording.
type TelemetryConfig struct {
	CSVDir     string `yaml:"csv_dir"`     // directory for flight data CSV files, empty = disabled
	BufferSize int    `yaml:"buffer_size"` // frames queued before dropping
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
	PWMFreqHz  int  `yaml:"pwm_freq_hz"` // ESC PWM frequency
	LEDPin     int  `yaml:"led_pin"`     // status LED pin (BCM). 0 = not used.
}

// Config aggregates all application configuration.
type Config struct {
	Sticks      SticksConfig      `yaml:"sticks"`
	Motors      []MotorConfig     `yaml:"motors"`
	PWM         PWMConfig         `yaml:"pwm"`
	IMU         IMUConfig         `yaml:"imu"`
	RC          RCConfig          `yaml:"rc"`
	Loop        LoopConfig        `yaml:"loop"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory and does not use parent references.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.IMU.Bus <= 0 {
		c.IMU.Bus = 1
	}
	if c.IMU.Address <= 0 {
		c.IMU.Address = 0x68
	}
	if c.PWM.Driver == "" {
		c.PWM.Driver = PWMDriverPCA9685
	}
	if c.PWM.Bus <= 0 {
		c.PWM.Bus = 1
	}
	if c.PWM.Address <= 0 {
		c.PWM.Address = 0x40
	}
	if c.IMU.AccelRangeG <= 0 {
		c.IMU.AccelRangeG = 2
	}
	if c.IMU.SpikeLimit <= 0 {
		c.IMU.SpikeLimit = DefaultSpikeLimit(c.IMU.AccelRangeG)
	}
	if c.RC.BaudRate <= 0 {
		c.RC.BaudRate = 115200
	}
	if c.RC.Channels == [3]int{} {
		c.RC.Channels = [3]int{0, 1, 2}
	}
	if c.RC.TimeoutMs <= 0 {
		c.RC.TimeoutMs = 500
	}
	if c.Loop.StickFreqHz <= 0 {
		c.Loop.StickFreqHz = 10
	}
	if c.Loop.MotorAdjFreqHz <= 0 {
		c.Loop.MotorAdjFreqHz = c.Loop.StickFreqHz
	}
	if c.Calibration.Samples <= 0 {
		c.Calibration.Samples = 30
	}
	if c.Calibration.IntervalMs <= 0 {
		c.Calibration.IntervalMs = 100
	}
	if c.Calibration.EscapeSticks == [3]int{} {
		c.Calibration.EscapeSticks = [3]int{5000, 5000, 7500}
	}
	if c.Calibration.EscapeTop <= 0 {
		c.Calibration.EscapeTop = 5
	}
	if c.Calibration.ArmDelayMs <= 0 {
		c.Calibration.ArmDelayMs = 1000
	}
	if c.Calibration.SpinDownStep <= 0 {
		c.Calibration.SpinDownStep = 50
	}
	if c.Calibration.SpinDownIntervalMs <= 0 {
		c.Calibration.SpinDownIntervalMs = 20
	}
	if c.Telemetry.BufferSize <= 0 {
		c.Telemetry.BufferSize = 64
	}
	if c.Defaults.PWMFreqHz <= 0 {
		c.Defaults.PWMFreqHz = 50
	}
}

// Validate checks the structural consistency of the configuration.
// Stick and motor range tables are validated when the flight controllers
// are built from them.
func (c *Config) Validate() error {
	var err error

	if len(c.Motors) != 4 {
		err = multierr.Append(err, fmt.Errorf("motors: exactly 4 entries required, got %d", len(c.Motors)))
	}
	seen := make(map[string]bool)
	for i, m := range c.Motors {
		switch m.Role {
		case RoleFrontRight, RoleFrontLeft, RoleBackLeft, RoleBackRight:
		default:
			err = multierr.Append(err, fmt.Errorf("motors[%d]: unknown role %q", i, m.Role))
		}
		if seen[m.Role] {
			err = multierr.Append(err, fmt.Errorf("motors[%d]: duplicate role %q", i, m.Role))
		}
		seen[m.Role] = true
	}
	err = multierr.Append(err, c.validateMotorPins())

	if !slices.Contains(accelRanges, c.IMU.AccelRangeG) {
		err = multierr.Append(err, fmt.Errorf("imu: accel_range_g must be one of %v, got %d", accelRanges, c.IMU.AccelRangeG))
	} else if full := c.IMU.AccelRangeG * 100; c.IMU.SpikeLimit >= full {
		err = multierr.Append(err, fmt.Errorf("imu: spike_limit %d must be below the %d g full scale (%d)",
			c.IMU.SpikeLimit, c.IMU.AccelRangeG, full))
	}

	if c.Loop.StickFreqHz%c.Loop.MotorAdjFreqHz != 0 {
		err = multierr.Append(err, fmt.Errorf("loop: stick_freq_hz (%d) must be a multiple of motor_adj_freq_hz (%d)",
			c.Loop.StickFreqHz, c.Loop.MotorAdjFreqHz))
	}
	if c.Calibration.Samples < 2 {
		err = multierr.Append(err, fmt.Errorf("calibration: samples must be >= 2, got %d", c.Calibration.Samples))
	}
	for i, ch := range c.RC.Channels {
		if ch < 0 {
			err = multierr.Append(err, fmt.Errorf("rc: channels[%d] must be >= 0, got %d", i, ch))
		}
	}
	if !c.RC.Mock && c.RC.Port == "" {
		err = multierr.Append(err, errors.New("rc: port is required unless rc.mock is set"))
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		err = multierr.Append(err, fmt.Errorf("defaults: debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel))
	}

	return err
}

// validateMotorPins checks that every motor gets an output of its own.
// On rpio, pins 12/18 and 13/19 share a PWM channel, so they collide.
func (c *Config) validateMotorPins() error {
	var err error
	switch c.PWM.Driver {
	case PWMDriverRPIO:
		owners := make(map[int]int) // PWM channel -> motor index
		for i, m := range c.Motors {
			ch, ok := gpio.HardwarePWMChannel(m.Pin)
			if !ok {
				err = multierr.Append(err, fmt.Errorf("motors[%d]: pin %d has no hardware PWM", i, m.Pin))
				continue
			}
			if j, used := owners[ch]; used {
				err = multierr.Append(err, fmt.Errorf("motors[%d]: pin %d shares PWM channel %d with motors[%d] (pin %d)",
					i, m.Pin, ch, j, c.Motors[j].Pin))
				continue
			}
			owners[ch] = i
		}
	case PWMDriverPCA9685:
		used := make(map[int]bool)
		for i, m := range c.Motors {
			if m.Pin < 0 || m.Pin >= gpio.PCA9685Channels {
				err = multierr.Append(err, fmt.Errorf("motors[%d]: pca9685 channel %d outside 0-%d", i, m.Pin, gpio.PCA9685Channels-1))
				continue
			}
			if used[m.Pin] {
				err = multierr.Append(err, fmt.Errorf("motors[%d]: pca9685 channel %d already used", i, m.Pin))
			}
			used[m.Pin] = true
		}
	default:
		err = fmt.Errorf("pwm: unknown driver %q (want %s or %s)", c.PWM.Driver, PWMDriverRPIO, PWMDriverPCA9685)
	}
	return err
}

// DefaultSpikeLimit is 95% of the accelerometer full scale in g x100,
// so a saturated axis is always clamped.
func DefaultSpikeLimit(rangeG int) int {
	return rangeG * 95
}

// TickInterval returns the control loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Loop.StickFreqHz)
}

// MotorSubdivision returns how many ticks elapse between two duty updates.
func (c *Config) MotorSubdivision() int {
	return c.Loop.StickFreqHz / c.Loop.MotorAdjFreqHz
}

// CalibrationInterval returns the delay between two calibration samples.
func (c *Config) CalibrationInterval() time.Duration {
	return time.Duration(c.Calibration.IntervalMs) * time.Millisecond
}

// ArmDelay returns how long ESCs are held at their init duty.
func (c *Config) ArmDelay() time.Duration {
	return time.Duration(c.Calibration.ArmDelayMs) * time.Millisecond
}

// SpinDownInterval returns the delay between two spin-down steps.
func (c *Config) SpinDownInterval() time.Duration {
	return time.Duration(c.Calibration.SpinDownIntervalMs) * time.Millisecond
}

// RCTimeout returns the receiver signal-loss timeout.
func (c *Config) RCTimeout() time.Duration {
	return time.Duration(c.RC.TimeoutMs) * time.Millisecond
}

// StickTable returns the roll, pitch and throttle ranges in axis order.
func (c *Config) StickTable() [3][3]int {
	return [3][3]int{c.Sticks.Roll, c.Sticks.Pitch, c.Sticks.Throttle}
}
