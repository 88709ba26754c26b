package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/picodrone/picodrone/internal/telemetry"
)

// Event kinds.
const (
	KindStatus    = "status"
	KindTelemetry = "telemetry"
)

// Event is one message pushed to stream clients.
type Event struct {
	Kind  string           `json:"kind"`
	Time  string           `json:"t"`
	Level string           `json:"l,omitempty"`
	Msg   string           `json:"msg,omitempty"`
	Frame *telemetry.Frame `json:"frame,omitempty"`
}

// Hub distributes status lines and telemetry frames to SSE and
// WebSocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives encoded events and a cleanup
// function. The caller must call cleanup when the client goes away.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// publish sends evt to every subscriber. Slow clients miss messages.
func (h *Hub) publish(evt Event) {
	evt.Time = time.Now().Format(time.RFC3339Nano)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Status publishes a status line.
func (h *Hub) Status(level, msg string) {
	h.publish(Event{Kind: KindStatus, Level: level, Msg: msg})
}

// Write publishes a telemetry frame. It lets the hub be used as a
// telemetry sink.
func (h *Hub) Write(f telemetry.Frame) error {
	h.publish(Event{Kind: KindTelemetry, Frame: &f})
	return nil
}

// StatusWriter returns an io.Writer that publishes each write as a status
// line, for use with debug.SetOutput.
func StatusWriter(h *Hub) *statusWriter {
	return &statusWriter{h: h}
}

type statusWriter struct {
	h *Hub
}

func (w *statusWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.h.Status("info", msg)
	}
	return len(p), nil
}
