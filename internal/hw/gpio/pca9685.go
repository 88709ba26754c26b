package gpio

import (
	"fmt"
	"io"
	"sync"

	"github.com/kidoman/embd"
	"github.com/kidoman/embd/controller/pca9685"
	_ "github.com/kidoman/embd/host/rpi"
	"go.uber.org/multierr"

	"github.com/picodrone/picodrone/internal/debug"
)

const (
	// PCA9685Channels is the number of independent outputs on the board.
	PCA9685Channels = 16
	// PCA9685DefaultAddress is the board address with no jumpers set.
	PCA9685DefaultAddress byte = 0x40

	pcaSteps   = 4096
	pcaFullOff = pcaSteps // sets the OFF_H full-off bit
)

// pwmChip is the part of *pca9685.PCA9685 the driver uses.
type pwmChip interface {
	SetPwm(channel, onTime, offTime int) error
	Close() error
}

// PCA9685Driver drives ESCs from a PCA9685 16-channel PWM board.
// Every channel has its own duty register, unlike the two hardware
// PWM channels of the Pi. All channels share one frequency.
type PCA9685Driver struct {
	mu       sync.Mutex
	chip     pwmChip
	bus      io.Closer
	freqHz   int
	channels map[int]bool
}

// OpenPCA9685 opens the host I2C bus and returns a driver for the board
// at address, running at freqHz.
func OpenPCA9685(busNum int, address byte, freqHz int) (*PCA9685Driver, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("init i2c: %w", err)
	}
	if address == 0 {
		address = PCA9685DefaultAddress
	}
	bus := embd.NewI2CBus(byte(busNum))
	chip := pca9685.New(bus, address)
	chip.Freq = freqHz
	debug.Info("Using PCA9685 PWM board at 0x%02x on i2c-%d (%d Hz)", address, busNum, freqHz)

	d := NewPCA9685Driver(chip, freqHz)
	d.bus = bus
	return d, nil
}

// NewPCA9685Driver wraps an already configured chip.
func NewPCA9685Driver(chip pwmChip, freqHz int) *PCA9685Driver {
	return &PCA9685Driver{
		chip:     chip,
		freqHz:   freqHz,
		channels: make(map[int]bool),
	}
}

func (d *PCA9685Driver) SetupPWM(channel int, freqHz int, cycle uint32) error {
	debug.GPIO("SetupPWM", channel, freqHz)
	if channel < 0 || channel >= PCA9685Channels {
		return fmt.Errorf("pca9685: channel %d outside 0-%d", channel, PCA9685Channels-1)
	}
	if freqHz != d.freqHz {
		return fmt.Errorf("pca9685: channel %d wants %d Hz, board runs at %d Hz", channel, freqHz, d.freqHz)
	}
	if cycle == 0 {
		return fmt.Errorf("pca9685: channel %d: zero cycle", channel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.channels[channel] {
		return fmt.Errorf("pca9685: channel %d already configured", channel)
	}
	if err := d.chip.SetPwm(channel, 0, pcaFullOff); err != nil {
		return fmt.Errorf("pca9685: channel %d: %w", channel, err)
	}
	d.channels[channel] = true
	return nil
}

// WritePWM rescales duty/cycle to the board's 12-bit counter.
func (d *PCA9685Driver) WritePWM(channel int, duty, cycle uint32) error {
	debug.PWM(channel, duty, cycle)
	if duty > cycle {
		return fmt.Errorf("pca9685: duty %d exceeds cycle %d on channel %d", duty, cycle, channel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.channels[channel] {
		return fmt.Errorf("pca9685: channel %d is not configured", channel)
	}
	if err := d.chip.SetPwm(channel, 0, offCount(duty, cycle)); err != nil {
		return fmt.Errorf("pca9685: channel %d: %w", channel, err)
	}
	return nil
}

// Close resets the board, which stops every output, then releases the bus.
func (d *PCA9685Driver) Close() error {
	debug.Trace("PCA9685 Close")
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.chip.Close()
	if d.bus != nil {
		err = multierr.Append(err, d.bus.Close())
	}
	return err
}

func offCount(duty, cycle uint32) int {
	if duty == 0 {
		return pcaFullOff
	}
	return min(int(uint64(duty)*pcaSteps/uint64(cycle)), pcaSteps-1)
}
