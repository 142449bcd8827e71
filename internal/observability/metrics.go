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
	ConnectedClients prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	SessionEvents    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	TaskOutcomes     *prometheus.CounterVec
	TaskDuration     prometheus.Histogram
	WSWriteErrors    prometheus.Counter

	latency *latencyWindow
}

// NewMetrics registers the instruments on reg. A nil reg uses the default
// Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Number of open websocket connections.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live agent sessions.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TaskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Finished agent tasks by outcome.",
		}, []string{"outcome"}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_ms",
			Help:      "Agent task duration from acknowledgement to terminal event in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}),
		WSWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Failed websocket writes.",
		}),
		latency: newLatencyWindow(256),
	}
}

// ObserveTask records a finished task. firstEvent is the delay until its
// first forwarded progress event, or zero when it produced none.
func (m *Metrics) ObserveTask(outcome string, total, firstEvent time.Duration) {
	ms := durationMS(total)
	m.TaskOutcomes.WithLabelValues(outcome).Inc()
	m.TaskDuration.Observe(ms)
	m.latency.add(taskSample{
		outcome:      outcome,
		totalMS:      ms,
		firstEventMS: durationMS(firstEvent),
		hasFirst:     firstEvent > 0,
	})
}

// TaskLatency returns rolling latency stats over recent tasks.
func (m *Metrics) TaskLatency() LatencySnapshot {
	return m.latency.snapshot()
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// MetricsHandler serves the registry reg, or the default one when reg is nil.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
