// Package httpapi serves the optional debug endpoint: health, prometheus
// metrics, and the latest frame and HUD values seen by any display session.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"
	"pkt.systems/simlink/internal/eventbus"
	"pkt.systems/simlink/schema"
)

const shutdownTimeout = 5 * time.Second

// Server keeps the latest link state published on the bus.
type Server struct {
	bus      *eventbus.Bus
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	frame    schema.Frame
	frameAt  time.Time
	status   schema.PlayerStatus
	statusOK bool
	title    string
	message  string
	sessions map[string]struct{}
}

// New builds a server reading from bus. A nil gatherer serves the default
// prometheus registry.
func New(bus *eventbus.Bus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{bus: bus, gatherer: gatherer, sessions: make(map[string]struct{})}
}

// Watch records bus events until ctx ends.
func (s *Server) Watch(ctx context.Context) {
	events, cancel := s.bus.Subscribe(eventbus.AllSessions)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.record(ev)
		}
	}
}

func (s *Server) record(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case eventbus.EventFrame:
		if ev.Frame.Pixels != nil {
			s.frame = ev.Frame
			s.frameAt = time.Now()
		}
	case eventbus.EventStatus:
		s.status, s.statusOK = ev.Status, true
	case eventbus.EventText:
		if ev.Kind == schema.SimSetTitle {
			s.title = ev.Text
		} else {
			s.message = ev.Text
		}
	case eventbus.EventLink:
		if ev.Up {
			s.sessions[ev.Session] = struct{}{}
		} else {
			delete(s.sessions, ev.Session)
		}
	}
}

// Handler returns the debug router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withRequestLogging)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/frame.png", s.handleFrame)
	r.Get("/status", s.handleStatus)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	frame := s.frame
	s.mu.Unlock()
	if frame.Pixels == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, toImage(frame)); err != nil {
		pslog.Ctx(r.Context()).Warn("encode frame", "err", err)
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func toImage(frame schema.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i, j := 0, 0; i+2 < len(frame.Pixels) && j+3 < len(img.Pix); i, j = i+3, j+4 {
		img.Pix[j] = frame.Pixels[i]
		img.Pix[j+1] = frame.Pixels[i+1]
		img.Pix[j+2] = frame.Pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

type statusResponse struct {
	Sessions int                  `json:"sessions"`
	Title    string               `json:"title,omitempty"`
	Message  string               `json:"message,omitempty"`
	Player   *schema.PlayerStatus `json:"player,omitempty"`
	Frame    *frameInfo           `json:"frame,omitempty"`
}

type frameInfo struct {
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	DetachedUI uint8     `json:"detached_ui"`
	At         time.Time `json:"at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := statusResponse{Sessions: len(s.sessions), Title: s.title, Message: s.message}
	if s.statusOK {
		st := s.status
		resp.Player = &st
	}
	if s.frame.Pixels != nil {
		resp.Frame = &frameInfo{Width: s.frame.Width, Height: s.frame.Height, DetachedUI: uint8(s.frame.DetachedUI), At: s.frameAt}
	}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
