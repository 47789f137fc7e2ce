package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irrigation"

// Breaker states as exposed by the breaker_state gauge.
const (
	breakerClosed   = 0
	breakerHalfOpen = 1
	breakerOpen     = 2
)

// Metrics is the set of collectors updated by the control loop.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages      *prometheus.CounterVec
	actuations    prometheus.Counter
	actuationMs   prometheus.Histogram
	connectEvents *prometheus.CounterVec
	connected     prometheus.Gauge
	breakerState  prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Telemetry messages handled, by outcome.",
		}, []string{"outcome"}),
		actuations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Watering commands published.",
		}),
		actuationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "actuation_milliseconds",
			Help:      "Valve run time of published watering commands.",
			Buckets:   prometheus.ExponentialBuckets(250, 2, 8),
		}),
		connectEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_connect_events_total",
			Help:      "Broker connection events, by result.",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mqtt_connected",
			Help:      "1 while a broker session is established.",
		}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_breaker_state",
			Help:      "Persistence circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
	}

	m.registry.MustRegister(
		m.messages,
		m.actuations,
		m.actuationMs,
		m.connectEvents,
		m.connected,
		m.breakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// MessageHandled counts one handled message under its outcome label.
func (m *Metrics) MessageHandled(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// Actuated records a published watering command.
func (m *Metrics) Actuated(milliseconds int64) {
	if m == nil {
		return
	}
	m.actuations.Inc()
	m.actuationMs.Observe(float64(milliseconds))
}

// ConnectEvent records a connection event reported by the broker.
func (m *Metrics) ConnectEvent(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.connectEvents.WithLabelValues("accepted").Inc()
		m.connected.Set(1)
		return
	}
	m.connectEvents.WithLabelValues("refused").Inc()
	m.connected.Set(0)
}

// Disconnected marks the broker session as lost.
func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

// BreakerState records a breaker transition. It matches the signature of
// the storage breaker's state change callback.
func (m *Metrics) BreakerState(_, to string) {
	if m == nil {
		return
	}
	switch to {
	case "open":
		m.breakerState.Set(breakerOpen)
	case "half-open":
		m.breakerState.Set(breakerHalfOpen)
	default:
		m.breakerState.Set(breakerClosed)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
