package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the relay forwarder.
type Metrics struct {
	ForwardedRequests *prometheus.CounterVec
	ForwardDuration   *prometheus.HistogramVec
	ForwardErrors     *prometheus.CounterVec
	InflightRequests  prometheus.Gauge
	BodyBytes         prometheus.Histogram
}

// NewMetrics creates and registers the relay metrics on a dedicated
// registry so tests can build handlers without duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ForwardedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_forwarded_requests_total",
			Help: "Total number of requests forwarded upstream",
		}, []string{"method", "status"}),
		ForwardDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_forward_duration_seconds",
			Help:    "Upstream round-trip duration",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"method"}),
		ForwardErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_forward_errors_total",
			Help: "Total number of forwarding failures",
		}, []string{"kind"}),
		InflightRequests: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_inflight_requests",
			Help: "Current number of requests being forwarded",
		}),
		BodyBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_request_body_bytes",
			Help:    "Size of forwarded request bodies",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}
