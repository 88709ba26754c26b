package rc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/picodrone/picodrone/internal/debug"
)

// FlySky iBus framing.
const (
	FrameLen    = 32
	NumChannels = 14

	header0 = 0x20
	header1 = 0x40
)

var (
	ErrChecksum = errors.New("ibus checksum mismatch")
	ErrHeader   = errors.New("ibus bad header")
	ErrNoSignal = errors.New("no rc signal")
)

// ParseFrame validates a 32-byte iBus frame and returns its channels in
// microseconds.
func ParseFrame(b []byte) ([NumChannels]int, error) {
	var ch [NumChannels]int
	if len(b) != FrameLen {
		return ch, fmt.Errorf("ibus frame length %d", len(b))
	}
	if b[0] != header0 || b[1] != header1 {
		return ch, ErrHeader
	}
	if checksum(b[:FrameLen-2]) != binary.LittleEndian.Uint16(b[FrameLen-2:]) {
		return ch, ErrChecksum
	}
	for i := range ch {
		ch[i] = int(binary.LittleEndian.Uint16(b[2+2*i:]) & 0x0FFF)
	}
	return ch, nil
}

// EncodeFrame builds a frame from channel values, the inverse of ParseFrame.
func EncodeFrame(ch [NumChannels]int) []byte {
	b := make([]byte, FrameLen)
	b[0], b[1] = header0, header1
	for i, v := range ch {
		binary.LittleEndian.PutUint16(b[2+2*i:], uint16(v))
	}
	binary.LittleEndian.PutUint16(b[FrameLen-2:], checksum(b[:FrameLen-2]))
	return b
}

func checksum(b []byte) uint16 {
	sum := uint16(0xFFFF)
	for _, v := range b {
		sum -= uint16(v)
	}
	return sum
}

// Decoder keeps the latest valid frame read from a receiver stream.
type Decoder struct {
	r       io.Reader
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	channels [NumChannels]int
	last     time.Time
	frames   int
	errors   int
}

// NewDecoder wraps r. A frame older than timeout counts as signal loss;
// zero disables the check.
func NewDecoder(r io.Reader, timeout time.Duration) *Decoder {
	return &Decoder{r: r, timeout: timeout, now: time.Now}
}

// Serve reads frames until ctx is done or the reader fails.
func (d *Decoder) Serve(ctx context.Context) error {
	buf := make([]byte, FrameLen)
	for {
		if err := d.sync(ctx, buf); err != nil {
			return err
		}
		if err := d.readFull(ctx, buf[2:]); err != nil {
			return err
		}
		ch, err := ParseFrame(buf)
		d.mu.Lock()
		if err != nil {
			d.errors++
			d.mu.Unlock()
			debug.Trace("iBus: %v", err)
			continue
		}
		d.channels = ch
		d.last = d.now()
		d.frames++
		d.mu.Unlock()
	}
}

// sync consumes bytes until the two header bytes are found.
func (d *Decoder) sync(ctx context.Context, buf []byte) error {
	prev := byte(0)
	for {
		if err := d.readFull(ctx, buf[1:2]); err != nil {
			return err
		}
		if prev == header0 && buf[1] == header1 {
			buf[0] = header0
			return nil
		}
		prev = buf[1]
	}
}

// readFull tolerates zero-length reads, which a serial port returns on
// read timeout.
func (d *Decoder) readFull(ctx context.Context, p []byte) error {
	for n := 0; n < len(p); {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := d.r.Read(p[n:])
		n += m
		if err != nil {
			if n == len(p) && errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Channels returns the latest channel values.
func (d *Decoder) Channels() ([NumChannels]int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frames == 0 {
		return d.channels, ErrNoSignal
	}
	if d.timeout > 0 && d.now().Sub(d.last) > d.timeout {
		return d.channels, ErrNoSignal
	}
	return d.channels, nil
}

// Stats returns the number of accepted and rejected frames.
func (d *Decoder) Stats() (frames, rejected int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames, d.errors
}
