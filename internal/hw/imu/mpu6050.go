package imu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi"

	"github.com/picodrone/picodrone/internal/debug"
)

// MPU-6050 register map, only the part we touch.
const (
	DefaultAddress byte = 0x68

	regPwrMgmt1   byte = 0x6B
	regWhoAmI     byte = 0x75
	regGyroConfig byte = 0x1B
	regAccConfig  byte = 0x1C
	regAccelXOutH byte = 0x3B

	// Sensitivity at +/-2 g; each range step halves it.
	accelLSBPerG2  = 16384.0
	gyroLSBPerDegS = 131.0 // +/-250 deg/s

	burstLen = 14
)

// Bus is the subset of embd.I2CBus used by the driver.
type Bus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	WriteByteToReg(addr, reg, value byte) error
	Close() error
}

// accelConfig returns the ACCEL_CONFIG AFS_SEL bits and the sensitivity
// for a full scale of rangeG g.
func accelConfig(rangeG int) (byte, float64, error) {
	for sel, g := range []int{2, 4, 8, 16} {
		if g == rangeG {
			return byte(sel) << 3, accelLSBPerG2 / float64(int(1)<<sel), nil
		}
	}
	return 0, 0, fmt.Errorf("mpu6050: unsupported accelerometer range %d g", rangeG)
}

// MPU6050 reads acceleration, rotation and temperature over I2C.
type MPU6050 struct {
	mu      sync.Mutex
	bus     Bus
	address byte
	lsbPerG float64
	buf     [burstLen]byte
	closed  bool
}

// OpenMPU6050 initializes the host I2C bus and wakes the sensor.
func OpenMPU6050(busNum int, address byte, rangeG int) (*MPU6050, error) {
	if err := embd.InitI2C(); err != nil {
		return nil, fmt.Errorf("init i2c: %w", err)
	}
	return NewMPU6050(embd.NewI2CBus(byte(busNum)), address, rangeG)
}

// NewMPU6050 wakes the sensor on an already opened bus and selects the
// +/-rangeG g and +/-250 deg/s ranges.
func NewMPU6050(bus Bus, address byte, rangeG int) (*MPU6050, error) {
	if address == 0 {
		address = DefaultAddress
	}
	afs, lsb, err := accelConfig(rangeG)
	if err != nil {
		return nil, err
	}
	m := &MPU6050{bus: bus, address: address, lsbPerG: lsb}

	debug.Verbose("MPU6050: waking sensor at 0x%02x", address)
	for _, w := range []struct{ reg, val byte }{
		{regPwrMgmt1, 0x00},
		{regGyroConfig, 0x00},
		{regAccConfig, afs},
	} {
		if err := bus.WriteByteToReg(address, w.reg, w.val); err != nil {
			return nil, fmt.Errorf("mpu6050 write 0x%02x: %w", w.reg, err)
		}
	}

	id := make([]byte, 1)
	if err := bus.ReadFromReg(address, regWhoAmI, id); err != nil {
		return nil, fmt.Errorf("mpu6050 who_am_i: %w", err)
	}
	debug.Verbose("MPU6050: who_am_i=0x%02x", id[0])
	return m, nil
}

// Read performs one 14-byte burst read starting at ACCEL_XOUT_H.
func (m *MPU6050) Read() (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Sample{}, ErrNotReady
	}
	if err := m.bus.ReadFromReg(m.address, regAccelXOutH, m.buf[:]); err != nil {
		return Sample{}, fmt.Errorf("mpu6050 read: %w", err)
	}
	s := decode(m.buf[:], m.lsbPerG)
	debug.Trace("MPU6050: acc=%v gyro=%v temp=%.2f", s.Accel, s.Gyro, s.Temperature)
	return s, nil
}

// Close releases the bus.
func (m *MPU6050) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.bus.Close()
}

// decode converts a burst of big-endian registers: accel xyz, temp, gyro xyz.
func decode(b []byte, accelLSBPerG float64) Sample {
	word := func(i int) float64 {
		return float64(int16(binary.BigEndian.Uint16(b[i : i+2])))
	}
	var s Sample
	for i := 0; i < 3; i++ {
		s.Accel[i] = word(2*i) / accelLSBPerG
		s.Gyro[i] = word(8+2*i) / gyroLSBPerDegS
	}
	s.Temperature = word(6)/340.0 + 36.53
	return s
}
