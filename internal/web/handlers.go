package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/picodrone/picodrone/internal/logic/calibration"
	"github.com/picodrone/picodrone/internal/logic/flight"
)

// CalibrationReport is what the operator checks before letting the
// flight loop start.
type CalibrationReport struct {
	Calibrated bool                        `json:"calibrated"`
	Baseline   *calibration.BaselineResult `json:"baseline,omitempty"`
	Escape     *calibration.EscapeResult   `json:"escape,omitempty"`
	Thresholds flight.Thresholds           `json:"thresholds"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Hub  *Hub
	Info any // served as-is on GET /config

	reportMu sync.RWMutex
	report   CalibrationReport

	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

// NewHandlers creates handlers streaming from hub.
func NewHandlers(hub *Hub, info any) *Handlers {
	return &Handlers{
		Hub:       hub,
		Info:      info,
		heartbeat: 30 * time.Second,
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// SetReport replaces the calibration report.
func (h *Handlers) SetReport(r CalibrationReport) {
	h.reportMu.Lock()
	h.report = r
	h.reportMu.Unlock()
}

// HandleConfig returns the configuration summary as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Info)
}

// HandleCalibration returns the latest calibration report as JSON.
func (h *Handlers) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	h.reportMu.RLock()
	report := h.report
	h.reportMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// HandleStream handles GET /telemetry/stream for SSE.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Hub.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleWebSocket handles GET /telemetry/ws. Each event is sent as one
// text message; anything the client sends is ignored.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, unsub := h.Hub.Subscribe()
	defer unsub()

	// The reader only detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
