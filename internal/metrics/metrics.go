// Package metrics holds the Prometheus collectors for the streaming client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quotestream"

// Metrics holds Prometheus metrics for the session engine
type Metrics struct {
	framesReceived     prometheus.Counter
	responsesDelivered prometheus.Counter
	decodeErrors       *prometheus.CounterVec
	queueDepth         prometheus.Gauge
	phase              prometheus.Gauge
	handshakeDuration  prometheus.Histogram
	sessionsEnded      *prometheus.CounterVec
	reconnectAttempts  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil registerer
// yields a nil *Metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "frames_received_total",
			Help:      "Total frames read off the transport after the handshake",
		}),
		responsesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "responses_delivered_total",
			Help:      "Total decoded events delivered to the sink",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "decode_errors_total",
			Help:      "Total frames that failed to decode, by stage",
		}, []string{"stage"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "queue_depth",
			Help:      "Frames waiting in the hand-off queue",
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "phase",
			Help:      "Current handshake phase of the active session",
		}),
		handshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connection to streaming",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "ended_total",
			Help:      "Total sessions ended, by outcome",
		}, []string{"outcome"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "reconnect_attempts_total",
			Help:      "Total reconnection attempts",
		}),
	}

	collectors := []prometheus.Collector{
		m.framesReceived,
		m.responsesDelivered,
		m.decodeErrors,
		m.queueDepth,
		m.phase,
		m.handshakeDuration,
		m.sessionsEnded,
		m.reconnectAttempts,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// FrameReceived counts a frame read from the connection.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// ResponseDelivered counts a response accepted by the sink.
func (m *Metrics) ResponseDelivered() {
	if m == nil {
		return
	}
	m.responsesDelivered.Inc()
}

// DecodeError counts a frame that failed to decode during stage
// ("handshake" or "stream").
func (m *Metrics) DecodeError(stage string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(stage).Inc()
}

// SetQueueDepth records how many frames wait in the hand-off queue.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetPhase records the active session's phase as its numeric value.
func (m *Metrics) SetPhase(phase int) {
	if m == nil {
		return
	}
	m.phase.Set(float64(phase))
}

// ObserveHandshake records the time taken to reach streaming.
func (m *Metrics) ObserveHandshake(d time.Duration) {
	if m == nil {
		return
	}
	m.handshakeDuration.Observe(d.Seconds())
}

// SessionEnded counts a finished session under its outcome label.
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(outcome).Inc()
}

// ReconnectAttempt counts a connection attempt after the first.
func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}
