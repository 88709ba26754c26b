package led

import (
	"testing"
	"time"

	"github.com/picodrone/picodrone/internal/hw/gpio"
)

// recordingDriver records GPIO calls for verification.
type recordingDriver struct {
	calls []gpioCall
}

type gpioCall struct {
	op    string
	pin   int
	level gpio.Level
}

func (d *recordingDriver) SetupPin(pin int, mode gpio.PinMode) error {
	d.calls = append(d.calls, gpioCall{op: "setup", pin: pin})
	return nil
}

func (d *recordingDriver) WritePin(pin int, level gpio.Level) error {
	d.calls = append(d.calls, gpioCall{op: "write", pin: pin, level: level})
	return nil
}

func (d *recordingDriver) SetupPWM(pin int, freqHz int, cycle uint32) error { return nil }

func (d *recordingDriver) WritePWM(pin int, duty, cycle uint32) error { return nil }

func (d *recordingDriver) Close() error { return nil }

func (d *recordingDriver) writeCalls() []gpioCall {
	var result []gpioCall
	for _, c := range d.calls {
		if c.op == "write" {
			result = append(result, c)
		}
	}
	return result
}

func TestStatus_InitializedLow(t *testing.T) {
	drv := &recordingDriver{}
	if _, err := NewStatus(drv, 25); err != nil {
		t.Fatalf("NewStatus: %v", err)
	}

	if len(drv.calls) != 2 {
		t.Fatalf("calls = %v, want setup + write", drv.calls)
	}
	if drv.calls[0].op != "setup" || drv.calls[0].pin != 25 {
		t.Errorf("first call = %+v, want setup on pin 25", drv.calls[0])
	}
	if drv.calls[1].level != gpio.Low {
		t.Errorf("initial level = %v, want Low", drv.calls[1].level)
	}
}

func TestStatus_OnOffToggle(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := NewStatus(drv, 25)

	_ = s.On()
	if !s.IsOn() {
		t.Error("IsOn() = false after On()")
	}
	_ = s.Toggle()
	if s.IsOn() {
		t.Error("IsOn() = true after Toggle()")
	}

	writes := drv.writeCalls()
	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low}
	if len(writes) != len(want) {
		t.Fatalf("writes = %v, want %d", writes, len(want))
	}
	for i, w := range want {
		if writes[i].level != w {
			t.Errorf("write %d = %v, want %v", i, writes[i].level, w)
		}
	}
}

func TestStatus_Blink(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := NewStatus(drv, 25)
	var slept time.Duration
	s.sleep = func(d time.Duration) { slept += d }

	if err := s.Blink(3, 200*time.Millisecond); err != nil {
		t.Fatalf("Blink: %v", err)
	}
	// 1 initial write + 2 per blink
	if got := len(drv.writeCalls()); got != 7 {
		t.Errorf("writes = %d, want 7", got)
	}
	if slept != 600*time.Millisecond {
		t.Errorf("slept %v, want 600ms", slept)
	}
	if s.IsOn() {
		t.Error("LED should be off after Blink")
	}
}

func TestStatus_BlinkFromLit(t *testing.T) {
	drv := &recordingDriver{}
	s, _ := NewStatus(drv, 25)
	s.sleep = func(time.Duration) {}
	_ = s.On()

	if err := s.Blink(2, 100*time.Millisecond); err != nil {
		t.Fatalf("Blink: %v", err)
	}
	writes := drv.writeCalls()
	want := []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low, gpio.High, gpio.Low}
	if len(writes) != len(want) {
		t.Fatalf("writes = %v, want %d", writes, len(want))
	}
	for i, w := range want {
		if writes[i].level != w {
			t.Errorf("write %d = %v, want %v", i, writes[i].level, w)
		}
	}
}

func TestStatus_DisabledPin(t *testing.T) {
	drv := &recordingDriver{}
	s, err := NewStatus(drv, 0)
	if err != nil {
		t.Fatalf("NewStatus: %v", err)
	}
	_ = s.On()
	if len(drv.calls) != 0 {
		t.Errorf("disabled LED touched the driver: %v", drv.calls)
	}
	if !s.IsOn() {
		t.Error("IsOn() should still track state")
	}
}
