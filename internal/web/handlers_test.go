package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/picodrone/picodrone/internal/logic/calibration"
	"github.com/picodrone/picodrone/internal/logic/flight"
	"github.com/picodrone/picodrone/internal/telemetry"
)

func newTestServer(t *testing.T) (*Handlers, *httptest.Server) {
	t.Helper()
	h := NewHandlers(NewHub(), map[string]int{"stick_freq_hz": 10})
	srv := httptest.NewServer(NewServer("", h).Mux())
	t.Cleanup(srv.Close)
	return h, srv
}

// waitForClients polls until the hub has n subscribers.
func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleConfig(t *testing.T) {
	h := NewHandlers(NewHub(), map[string]int{"stick_freq_hz": 10})
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var got map[string]int
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["stick_freq_hz"] != 10 {
		t.Errorf("stick_freq_hz = %d, want 10", got["stick_freq_hz"])
	}
}

func TestHandleCalibration_PendingThenReported(t *testing.T) {
	h := NewHandlers(NewHub(), nil)

	w := httptest.NewRecorder()
	h.HandleCalibration(w, httptest.NewRequest(http.MethodGet, "/calibration", nil))
	var pending CalibrationReport
	if err := json.NewDecoder(w.Body).Decode(&pending); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pending.Calibrated || pending.Baseline != nil {
		t.Errorf("report = %+v, want empty", pending)
	}

	h.SetReport(CalibrationReport{
		Calibrated: true,
		Baseline:   &calibration.BaselineResult{Mean: [3]int{0, 0, 100}, AccSum: 10000},
		Escape: &calibration.EscapeResult{AccSum: 12100, Top: []calibration.EscapeSample{
			{Index: 12, Az: 110, DeltaAz: 10, AccSum: 12100, DeltaAccSum: 2100},
		}},
		Thresholds: flight.NewThresholds(10000, 12100),
	})

	w = httptest.NewRecorder()
	h.HandleCalibration(w, httptest.NewRequest(http.MethodGet, "/calibration", nil))
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got CalibrationReport
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Calibrated || got.Baseline.AccSum != 10000 || got.Escape.Top[0].Index != 12 {
		t.Errorf("report = %+v", got)
	}
	if got.Thresholds.Escape130 != 15730 {
		t.Errorf("Escape130 = %d, want 15730", got.Thresholds.Escape130)
	}
}

func TestHandleStream_SSE(t *testing.T) {
	h, srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/telemetry/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	waitForClients(t, h.Hub, 1)
	_ = h.Hub.Write(telemetry.Frame{Tick: 3})

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Kind != KindTelemetry || evt.Frame.Tick != 3 {
			t.Errorf("event = %+v", evt)
		}
		return
	}
	t.Fatal("stream ended without a data line")
}

func TestHandleStream_ClientDisconnectUnsubscribes(t *testing.T) {
	h, srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/telemetry/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	waitForClients(t, h.Hub, 1)
	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleWebSocket(t *testing.T) {
	h, srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/telemetry/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClients(t, h.Hub, 1)
	h.Hub.Status("info", "armed")
	_ = h.Hub.Write(telemetry.Frame{Tick: 1, Duties: [4]int{110, 215, 545, 3750}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Kind != KindStatus || evt.Msg != "armed" {
		t.Errorf("first event = %+v, want status armed", evt)
	}
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read: %v", err)
	}
	if evt.Kind != KindTelemetry || evt.Frame.Duties != [4]int{110, 215, 545, 3750} {
		t.Errorf("second event = %+v", evt)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.Hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after websocket close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/run")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
