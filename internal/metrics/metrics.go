// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for request and upstream latency.
var defaultBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// UnmatchedRoute is the route label for requests no route accepted.
const UnmatchedRoute = "unmatched"

// RouteKey is the echo context key under which handlers store the route template.
const RouteKey = "metrics.route"

// Metrics holds all Prometheus metric collectors for the gateway.
// All recording methods are safe on a nil receiver and never fail the caller.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec

	CircuitBreakerStatus *prometheus.GaugeVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "route", "status_code"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_http_requests_active",
			Help: "Number of active HTTP requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_request_duration_seconds",
			Help:    "Duration of requests to upstream services.",
			Buckets: defaultBuckets,
		}, []string{"service", "method", "status_code"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Total number of upstream service errors.",
		}, []string{"service", "error_type"}),

		CircuitBreakerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_status",
			Help: "Circuit breaker status (0=closed, 1=open, 0.5=half-open).",
		}, []string{"service"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.CircuitBreakerStatus,
	)

	return m
}

// Handler returns the text exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// TrackInFlight increments the in-flight gauge and returns the matching
// decrement. Callers must defer the returned function.
func (m *Metrics) TrackInFlight() (done func()) {
	if m == nil {
		return func() {}
	}
	m.RequestsInFlight.Inc()
	return m.RequestsInFlight.Dec
}

// ObserveRequest records one completed inbound request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := []string{NormalizeMethod(method), route, strconv.Itoa(status)}
	if c, err := m.RequestsTotal.GetMetricWithLabelValues(labels...); err == nil {
		c.Inc()
	}
	if h, err := m.RequestDuration.GetMetricWithLabelValues(labels...); err == nil {
		h.Observe(d.Seconds())
	}
}

// ObserveUpstream records one upstream call. A zero status means no response was received.
func (m *Metrics) ObserveUpstream(service, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	h, err := m.UpstreamDuration.GetMetricWithLabelValues(service, NormalizeMethod(method), StatusClass(status))
	if err == nil {
		h.Observe(d.Seconds())
	}
}

// UpstreamError counts one upstream error of the given kind.
func (m *Metrics) UpstreamError(service, kind string) {
	if m == nil {
		return
	}
	if c, err := m.UpstreamErrors.GetMetricWithLabelValues(service, kind); err == nil {
		c.Inc()
	}
}

// InitCircuitBreakers publishes a closed status for every upstream so the series exist.
func (m *Metrics) InitCircuitBreakers(services ...string) {
	if m == nil {
		return
	}
	for _, s := range services {
		if g, err := m.CircuitBreakerStatus.GetMetricWithLabelValues(s); err == nil {
			g.Set(0)
		}
	}
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// StatusClass buckets an upstream status code as "2xx".."5xx", or "error" when
// no valid response was received.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// RouteLabel returns the bounded route label for a request: the template a
// handler stored under RouteKey, else echo's matched route path, else
// UnmatchedRoute.
func RouteLabel(c echo.Context) string {
	if r, ok := c.Get(RouteKey).(string); ok && r != "" {
		return r
	}
	if p := c.Path(); p != "" {
		return p
	}
	return UnmatchedRoute
}
