package telemetry

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/picodrone/picodrone/internal/debug"
)

// Frame is one control-loop tick as seen by the recorders.
type Frame struct {
	Tick        int        `json:"tick"`
	Time        time.Time  `json:"time"`
	Acc         [3]float64 `json:"acc"`
	Gyro        [3]float64 `json:"gyro"`
	Temperature float64    `json:"temperature"`
	Sticks      [3]int     `json:"sticks"`
	Duties      [4]int     `json:"duties"`
}

// Recorder accepts frames without blocking the caller.
type Recorder interface {
	Record(f Frame)
}

// Sink persists or forwards frames. Sinks run on the Async worker, never
// on the control loop.
type Sink interface {
	Write(f Frame) error
}

// Discard is a Recorder that drops every frame.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Frame) {}

// Async queues frames in a bounded buffer and fans them out to its sinks
// from a single worker goroutine. When the buffer is full the frame is
// dropped and counted.
type Async struct {
	sinks []Sink
	queue chan Frame
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync starts the worker. size is the queue capacity.
func NewAsync(size int, sinks ...Sink) *Async {
	if size < 1 {
		size = 1
	}
	a := &Async{
		sinks: sinks,
		queue: make(chan Frame, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

// Record enqueues f or drops it if the queue is full or closed.
func (a *Async) Record(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.queue <- f:
	default:
		a.dropped.Add(1)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for f := range a.queue {
		for _, s := range a.sinks {
			if err := s.Write(f); err != nil {
				// Only the first failure is logged, the rest are counted.
				if a.failed.Add(1) == 1 {
					debug.Error(err)
				}
			}
		}
	}
}

// Dropped returns the number of frames lost to a full queue.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Failed returns the number of sink writes that returned an error.
func (a *Async) Failed() int64 {
	return a.failed.Load()
}

// Close drains the queue and closes every sink that is an io.Closer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	var err error
	for _, s := range a.sinks {
		if c, ok := s.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	if n := a.Dropped(); n > 0 {
		debug.Info("Telemetry: %d frames dropped", n)
	}
	return err
}

// LogSink prints every frame at the Live debug level.
type LogSink struct{}

func (LogSink) Write(f Frame) error {
	debug.Live("acc=%.2f,%.2f,%.2f gyro=%.1f,%.1f,%.1f temp=%.1f duty=%v",
		f.Acc[0], f.Acc[1], f.Acc[2], f.Gyro[0], f.Gyro[1], f.Gyro[2], f.Temperature, f.Duties)
	return nil
}
