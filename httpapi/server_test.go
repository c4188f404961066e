package httpapi

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"pkt.systems/simlink/internal/eventbus"
	"pkt.systems/simlink/internal/metrics"
	"pkt.systems/simlink/schema"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv := New(eventbus.New(nil), prometheus.NewRegistry())
	rec := get(t, srv.Handler(), "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.AddBytesSent("sim", 10)
	srv := New(eventbus.New(nil), reg)
	rec := get(t, srv.Handler(), "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `simlink_bytes_sent_total{side="sim"} 10`) {
		t.Fatalf("unexpected metrics body %q", rec.Body.String())
	}
}

func TestFrameAndStatusFollowBus(t *testing.T) {
	bus := eventbus.New(nil)
	srv := New(bus, prometheus.NewRegistry())
	h := srv.Handler()
	if rec := get(t, h, "/frame.png"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any frame, got %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx)
		close(done)
	}()
	for !bus.HasSubscribers("s1") {
		time.Sleep(time.Millisecond)
	}
	bus.OnLink("s1", true)
	bus.OnText("s1", schema.SimSetTitle, "demo")
	bus.OnStatus("s1", schema.PlayerStatus{Health: 77})
	bus.OnFrame("s1", schema.Frame{Width: 2, Height: 1, Pixels: []byte{255, 0, 0, 0, 0, 255}})

	deadline := time.Now().Add(2 * time.Second)
	var rec *httptest.ResponseRecorder
	for {
		rec = get(t, h, "/frame.png")
		if rec.Code == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected png, got %d", rec.Code)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if r, g, b, _ := img.At(1, 0).RGBA(); r != 0 || g != 0 || b != 0xffff {
		t.Fatalf("expected blue pixel, got %d %d %d", r, g, b)
	}

	var status statusResponse
	if err := json.NewDecoder(get(t, h, "/status").Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Sessions != 1 || status.Title != "demo" || status.Player == nil || status.Player.Health != 77 || status.Frame == nil || status.Frame.Width != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
	cancel()
	<-done
}
