// Package metrics exposes prometheus counters for both ends of the link.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "simlink"

// Metrics holds the collectors shared by the host and the display.
type Metrics struct {
	bytesSent       *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	messagesDecoded *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	framesRendered  *prometheus.CounterVec
	renderDuration  *prometheus.HistogramVec
	keysDropped     prometheus.Counter
	connectAttempts prometheus.Counter
	fatalErrors     *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		bytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the link socket.",
		}, []string{"side"}),
		bytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes read from the link socket.",
		}, []string{"side"}),
		messagesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_decoded_total",
			Help:      "Messages decoded by kind.",
		}, []string{"kind"}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Send buffer flushes that wrote at least one byte.",
		}, []string{"side"}),
		framesRendered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames drawn to the display by renderer.",
		}, []string{"renderer"}),
		renderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent converting and writing one frame.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"renderer"}),
		keysDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keys_dropped_total",
			Help:      "Key events dropped because the key queue was full.",
		}),
		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts made by the display.",
		}),
		fatalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fatal_errors_total",
			Help:      "Connection-ending errors by class.",
		}, []string{"class"}),
	}
}

func (m *Metrics) AddBytesSent(side string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesSent.WithLabelValues(side).Add(float64(n))
	m.flushes.WithLabelValues(side).Inc()
}

func (m *Metrics) AddBytesReceived(side string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesReceived.WithLabelValues(side).Add(float64(n))
}

func (m *Metrics) MessageDecoded(kind string) {
	if m == nil {
		return
	}
	m.messagesDecoded.WithLabelValues(kind).Inc()
}

// FrameRendered records one frame drawn by renderer that took d.
func (m *Metrics) FrameRendered(renderer string, d time.Duration) {
	if m == nil {
		return
	}
	m.framesRendered.WithLabelValues(renderer).Inc()
	m.renderDuration.WithLabelValues(renderer).Observe(d.Seconds())
}

func (m *Metrics) KeyDropped() {
	if m == nil {
		return
	}
	m.keysDropped.Inc()
}

func (m *Metrics) ConnectAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *Metrics) FatalError(class string) {
	if m == nil {
		return
	}
	m.fatalErrors.WithLabelValues(class).Inc()
}
