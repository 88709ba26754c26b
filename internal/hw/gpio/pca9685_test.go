package gpio

import (
	"errors"
	"testing"
)

type pwmWrite struct {
	channel, on, off int
}

type fakeChip struct {
	writes []pwmWrite
	closed bool
	fail   error
}

func (c *fakeChip) SetPwm(channel, onTime, offTime int) error {
	if c.fail != nil {
		return c.fail
	}
	c.writes = append(c.writes, pwmWrite{channel, onTime, offTime})
	return nil
}

func (c *fakeChip) Close() error {
	c.closed = true
	return nil
}

type fakeBus struct{ closed bool }

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func TestPCA9685_FourIndependentChannels(t *testing.T) {
	chip := &fakeChip{}
	d := NewPCA9685Driver(chip, 50)

	for ch := 0; ch < 4; ch++ {
		if err := d.SetupPWM(ch, 50, 65535); err != nil {
			t.Fatalf("SetupPWM(%d): %v", ch, err)
		}
	}
	chip.writes = nil

	duties := []uint32{110, 215, 545, 3750}
	for ch, duty := range duties {
		if err := d.WritePWM(ch, duty, 65535); err != nil {
			t.Fatalf("WritePWM(%d): %v", ch, err)
		}
	}

	// duty * 4096 / 65535, truncated
	want := []pwmWrite{{0, 0, 6}, {1, 0, 13}, {2, 0, 34}, {3, 0, 234}}
	if len(chip.writes) != len(want) {
		t.Fatalf("writes = %v, want %v", chip.writes, want)
	}
	for i, w := range want {
		if chip.writes[i] != w {
			t.Errorf("write %d = %+v, want %+v", i, chip.writes[i], w)
		}
	}
}

func TestPCA9685_SetupStartsFullOff(t *testing.T) {
	chip := &fakeChip{}
	d := NewPCA9685Driver(chip, 50)
	if err := d.SetupPWM(3, 50, 65535); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if len(chip.writes) != 1 || chip.writes[0] != (pwmWrite{3, 0, pcaFullOff}) {
		t.Errorf("writes = %v, want full-off on channel 3", chip.writes)
	}
}

func TestPCA9685_SetupRejections(t *testing.T) {
	d := NewPCA9685Driver(&fakeChip{}, 50)
	if err := d.SetupPWM(16, 50, 65535); err == nil {
		t.Error("channel 16 must be rejected")
	}
	if err := d.SetupPWM(-1, 50, 65535); err == nil {
		t.Error("channel -1 must be rejected")
	}
	if err := d.SetupPWM(0, 400, 65535); err == nil {
		t.Error("a frequency other than the board's must be rejected")
	}
	if err := d.SetupPWM(0, 50, 65535); err != nil {
		t.Fatalf("SetupPWM(0): %v", err)
	}
	if err := d.SetupPWM(0, 50, 65535); err == nil {
		t.Error("configuring channel 0 twice must fail")
	}
}

func TestPCA9685_WriteRejections(t *testing.T) {
	chip := &fakeChip{}
	d := NewPCA9685Driver(chip, 50)
	if err := d.WritePWM(2, 100, 65535); err == nil {
		t.Error("write to an unconfigured channel must fail")
	}
	if err := d.SetupPWM(2, 50, 65535); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if err := d.WritePWM(2, 70000, 65535); err == nil {
		t.Error("duty above cycle must fail")
	}
	chip.fail = errors.New("nack")
	if err := d.WritePWM(2, 100, 65535); err == nil {
		t.Error("bus error must surface")
	}
}

func TestOffCount(t *testing.T) {
	cases := []struct {
		duty, cycle uint32
		want        int
	}{
		{0, 65535, pcaFullOff},
		{65535, 65535, 4095},
		{32768, 65535, 2048},
		{7800, 65535, 487},
	}
	for _, tc := range cases {
		if got := offCount(tc.duty, tc.cycle); got != tc.want {
			t.Errorf("offCount(%d, %d) = %d, want %d", tc.duty, tc.cycle, got, tc.want)
		}
	}
}

func TestPCA9685_CloseResetsBoardAndBus(t *testing.T) {
	chip := &fakeChip{}
	bus := &fakeBus{}
	d := NewPCA9685Driver(chip, 50)
	d.bus = bus
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !chip.closed || !bus.closed {
		t.Errorf("chip closed=%v bus closed=%v, want both", chip.closed, bus.closed)
	}
}
