// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "query_gateway"

// Metrics is registered against its own registry so tests and multiple
// servers in one process do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	// requests counts chat completions.
	// Labels: kind (target kind), mode (stream, poll, fallback), outcome
	requests *prometheus.CounterVec

	// pollDuration measures submission to terminal phase.
	// Labels: phase
	pollDuration *prometheus.HistogramVec

	// activeRelays is the number of open upstream event streams.
	// Labels: framing (sse, lines)
	activeRelays *prometheus.GaugeVec

	// fallbacks counts streamed requests served by polling instead.
	// Labels: reason
	fallbacks *prometheus.CounterVec

	// relayedEvents counts events forwarded downstream.
	// Labels: framing
	relayedEvents *prometheus.CounterVec

	// modelListErrors counts resource kinds skipped in the models listing.
	// Labels: kind
	modelListErrors *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat completion requests by target kind, delivery mode and outcome",
		}, []string{"kind", "mode", "outcome"}),
		pollDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "duration_seconds",
			Help:      "Time from submission until a query reaches a terminal phase",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"phase"}),
		activeRelays: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "active",
			Help:      "Open upstream event streams",
		}, []string{"framing"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "fallbacks_total",
			Help:      "Streamed chat requests answered by polling",
		}, []string{"reason"}),
		relayedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_total",
			Help:      "Events forwarded to clients",
		}, []string{"framing"}),
		modelListErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "models",
			Name:      "list_errors_total",
			Help:      "Resource kinds skipped while listing models",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(kind, mode, outcome string) {
	m.requests.WithLabelValues(kind, mode, outcome).Inc()
}

func (m *Metrics) ObservePoll(phase string, d time.Duration) {
	m.pollDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RelayStarted increments the active gauge and returns the matching
// decrement.
func (m *Metrics) RelayStarted(framing string) func() {
	g := m.activeRelays.WithLabelValues(framing)
	g.Inc()
	return g.Dec
}

func (m *Metrics) ObserveRelayed(framing string, events int) {
	if events > 0 {
		m.relayedEvents.WithLabelValues(framing).Add(float64(events))
	}
}

func (m *Metrics) ObserveFallback(reason string) {
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveModelListError(kind string) {
	m.modelListErrors.WithLabelValues(kind).Inc()
}
