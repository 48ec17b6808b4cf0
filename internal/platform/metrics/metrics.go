package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics shared by the HTTP layer.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPErrors   *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates and registers the shared metrics on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pims_http_errors_total",
			Help: "Total number of 4xx and 5xx responses by route",
		}, []string{"route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pims_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) IncrementRequest(method, route, status string) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
}

func (m *Metrics) IncrementError(route, status string) {
	m.HTTPErrors.WithLabelValues(route, status).Inc()
}

func (m *Metrics) ObserveLatency(method, route string, start time.Time) {
	m.HTTPLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
