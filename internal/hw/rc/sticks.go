package rc

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/picodrone/picodrone/internal/debug"
)

// Pulse bounds of a stick channel, and the stick scale they map onto.
const (
	PulseMin = 1000
	PulseMax = 2000
	StickMax = 10000
)

// StickReader returns roll, pitch and throttle on the 0..StickMax scale.
type StickReader interface {
	ReadSticks() ([3]int, error)
}

// Scale maps a pulse width to the stick scale, clamping out-of-range pulses.
func Scale(pulse int) int {
	if pulse < PulseMin {
		pulse = PulseMin
	}
	if pulse > PulseMax {
		pulse = PulseMax
	}
	return (pulse - PulseMin) * StickMax / (PulseMax - PulseMin)
}

// Sticks maps three receiver channels to roll, pitch and throttle.
type Sticks struct {
	dec      *Decoder
	channels [3]int
}

// NewSticks reads the given channel indices from dec.
func NewSticks(dec *Decoder, channels [3]int) (*Sticks, error) {
	for _, c := range channels {
		if c < 0 || c >= NumChannels {
			return nil, fmt.Errorf("rc channel %d out of range", c)
		}
	}
	return &Sticks{dec: dec, channels: channels}, nil
}

func (s *Sticks) ReadSticks() ([3]int, error) {
	var out [3]int
	ch, err := s.dec.Channels()
	if err != nil {
		return out, err
	}
	for i, c := range s.channels {
		out[i] = Scale(ch[c])
	}
	return out, nil
}

// Fixed always returns the same stick positions.
type Fixed struct {
	Values [3]int
}

func (f *Fixed) ReadSticks() ([3]int, error) {
	return f.Values, nil
}

// SerialConfig describes the receiver UART.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// OpenSerial opens the receiver UART in 8N1 mode.
func OpenSerial(cfg SerialConfig) (io.ReadCloser, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port path is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 100 * time.Millisecond
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.SetReadTimeout(cfg.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	debug.Verbose("RC: %s open at %d baud", cfg.Port, cfg.BaudRate)
	return port, nil
}
