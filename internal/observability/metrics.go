package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	OutboundMessages    *prometheus.CounterVec
	RecognitionEvents   *prometheus.CounterVec
	RecognitionRestarts prometheus.Counter
	SynthesisEvents     *prometheus.CounterVec
	ChatRequests        *prometheus.CounterVec
	ChatLatency         prometheus.Histogram
	StoreErrors         *prometheus.CounterVec

	stages *latencyWindow
}

// NewMetrics registers the instruments on the default Prometheus registry, so a
// namespace can only be used once per process.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active assistant sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OutboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_messages_total",
			Help:      "Outbound queue results by message type.",
		}, []string{"type", "result"}),
		RecognitionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_events_total",
			Help:      "Speech recognition lifecycle events by type.",
		}, []string{"event"}),
		RecognitionRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_auto_restarts_total",
			Help:      "Recognition sessions restarted after an unexpected end.",
		}),
		SynthesisEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_events_total",
			Help:      "Speech synthesis lifecycle events by type.",
		}, []string{"event"}),
		ChatRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat completion requests by result.",
		}, []string{"result"}),
		ChatLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_latency_ms",
			Help:      "Chat completion latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Persistence failures by operation.",
		}, []string{"op"}),
		stages: newLatencyWindow(256),
	}
}

func (m *Metrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveOutboundMessage(msgType, result string) {
	if m == nil {
		return
	}
	m.OutboundMessages.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) ObserveRecognition(event string) {
	if m == nil {
		return
	}
	m.RecognitionEvents.WithLabelValues(event).Inc()
	if event == "auto_restart" {
		m.RecognitionRestarts.Inc()
	}
}

func (m *Metrics) ObserveSynthesis(event string) {
	if m == nil {
		return
	}
	m.SynthesisEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveChat(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(result).Inc()
	m.ChatLatency.Observe(float64(d.Milliseconds()))
	m.stages.Observe("chat_completion", float64(d.Milliseconds()))
	if result != "ok" {
		m.stages.ObserveIndicator("fallback_reply")
	}
}

func (m *Metrics) ObserveStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

// ObserveStage records a latency sample for the rolling /v1/perf/latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) SnapshotStages() StageSnapshot {
	if m == nil {
		return StageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.stages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
