// Package metrics exposes Prometheus instruments for the masking service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raaihank/datacloak/internal/privacy"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Detections      *prometheus.CounterVec
	RateLimited     prometheus.Counter
	WSClients       prometheus.Gauge
	BatchRecords    *prometheus.CounterVec
	EngineReloads   *prometheus.CounterVec
}

// New registers the instruments on a private registry
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"route"}),
		Detections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_detections_total",
			Help:      "Accepted PII detections by type.",
		}, []string{"pii_type"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected WebSocket clients.",
		}),
		BatchRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_records_total",
			Help:      "Batch records by outcome.",
		}, []string{"outcome"}),
		EngineReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_reloads_total",
			Help:      "Engine rebuilds after configuration changes by result.",
		}, []string{"result"}),
	}
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(route, code string, d time.Duration) {
	m.Requests.WithLabelValues(route, code).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(float64(d.Microseconds()) / 1000)
}

// ObserveDetections adds per-type detection counts
func (m *Metrics) ObserveDetections(counts map[privacy.PIIType]int) {
	for piiType, n := range counts {
		m.Detections.WithLabelValues(string(piiType)).Add(float64(n))
	}
}

// Registry returns the registry the instruments live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
