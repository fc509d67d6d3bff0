// Package metrics exposes gateway routing, circuit and probe metrics on a
// dedicated Prometheus registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Circuit state label values, matching circuitbreaker.State names.
var circuitStates = []string{"CLOSED", "OPEN", "HALF_OPEN"}

// Options configures metric names.
type Options struct {
	Namespace string
	Subsystem string
}

// Metrics holds every collector the gateway records.
type Metrics struct {
	registry *prometheus.Registry

	// Proxy metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inflight        *prometheus.GaugeVec

	// Circuit breaker metrics
	circuitState       *prometheus.GaugeVec
	circuitTransitions *prometheus.CounterVec
	circuitRejections  *prometheus.CounterVec

	// Health probe metrics
	probeDuration *prometheus.HistogramVec
	serviceUp     *prometheus.GaugeVec

	// Admin surface metrics
	httpRequestsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go runtime
// and process collectors, on a fresh registry.
func New(opts Options) (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initMetrics(opts)

	if err := m.registerMetrics(); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *Metrics) initMetrics(opts Options) {
	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "proxy_requests_total",
			Help:      "Total number of requests forwarded or rejected per service",
		},
		[]string{"service", "method", "status_code", "outcome"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "proxy_request_duration_seconds",
			Help:      "Time spent handling proxied requests, including the backend round trip",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "outcome"},
	)

	m.inflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "proxy_inflight_requests",
			Help:      "Number of requests currently forwarded to each service",
		},
		[]string{"service"},
	)

	m.circuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "circuit_state",
			Help:      "Current circuit state per service; 1 for the active state, 0 otherwise",
		},
		[]string{"service", "state"},
	)

	m.circuitTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "circuit_transitions_total",
			Help:      "Total number of circuit state transitions",
		},
		[]string{"service", "from", "to"},
	)

	m.circuitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "circuit_rejections_total",
			Help:      "Total number of requests rejected without contacting the backend",
		},
		[]string{"service", "state"},
	)

	m.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "health_probe_duration_seconds",
			Help:      "Health probe latency per service",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "reachable"},
	)

	m.serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "service_up",
			Help:      "Whether the latest health probe reached the service (1) or not (0)",
		},
		[]string{"service"},
	)

	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of requests served by the gateway's own endpoints",
		},
		[]string{"method", "route", "status_code"},
	)
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() error {
	cs := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.inflight,
		m.circuitState,
		m.circuitTransitions,
		m.circuitRejections,
		m.probeDuration,
		m.serviceUp,
		m.httpRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns the registry backing the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveForward records a proxied request. statusCode is what the client received.
func (m *Metrics) ObserveForward(service, method string, statusCode int, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(service, method, strconv.Itoa(statusCode), outcome).Inc()
	m.requestDuration.WithLabelValues(service, method, outcome).Observe(d.Seconds())
}

// ForwardStarted increments the in-flight gauge and returns the matching decrement.
func (m *Metrics) ForwardStarted(service string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inflight.WithLabelValues(service)
	g.Inc()
	return g.Dec
}

// RecordRejection counts a request the circuit breaker refused.
func (m *Metrics) RecordRejection(service, state string) {
	if m == nil {
		return
	}
	m.circuitRejections.WithLabelValues(service, state).Inc()
}

// SetCircuitState marks state as the active circuit state of service.
func (m *Metrics) SetCircuitState(service, state string) {
	if m == nil {
		return
	}
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.circuitState.WithLabelValues(service, s).Set(v)
	}
}

// RecordTransition counts a circuit state change and updates the state gauge.
func (m *Metrics) RecordTransition(service, from, to string) {
	if m == nil {
		return
	}
	m.circuitTransitions.WithLabelValues(service, from, to).Inc()
	m.SetCircuitState(service, to)
}

// ObserveProbe records a health probe result.
func (m *Metrics) ObserveProbe(service string, reachable bool, d time.Duration) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(service, strconv.FormatBool(reachable)).Observe(d.Seconds())
	up := 0.0
	if reachable {
		up = 1
	}
	m.serviceUp.WithLabelValues(service).Set(up)
}

// ObserveHTTP records a request to one of the gateway's own endpoints.
func (m *Metrics) ObserveHTTP(method, route string, statusCode int) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
}
