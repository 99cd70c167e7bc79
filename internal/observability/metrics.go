package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Write paths into the memory store. The direct path is the detector bypass
// with no model-side review; the reviewed path goes through the function-call
// arbitration. Keeping them as separate label values makes the trust-boundary
// contrast measurable.
const (
	WritePathDirect   = "direct"
	WritePathReviewed = "reviewed"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	MemoryWrites      *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	RetrievedMemories prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active chat sessions.",
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
		MemoryWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory store writes by path and action.",
		}, []string{"path", "action"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Completion provider errors by operation.",
		}, []string{"operation"}),
		RetrievedMemories: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_memories",
			Help:      "Memories injected into a retrieval-augmented turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
	}
}

// The recording helpers are nil-safe so core packages can run without a
// metrics registry in tests.

func (m *Metrics) RecordMemoryWrite(path, action string) {
	if m == nil {
		return
	}
	m.MemoryWrites.WithLabelValues(path, action).Inc()
}

func (m *Metrics) RecordProviderError(operation string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveRetrievedMemories(n int) {
	if m == nil {
		return
	}
	m.RetrievedMemories.Observe(float64(n))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
