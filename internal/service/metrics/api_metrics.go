package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// APIMetrics covers the engine endpoints beyond generic HTTP metrics.
type APIMetrics struct {
	latency     *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	rateLimited prometheus.Counter
	streams     *prometheus.GaugeVec
}

func NewAPIMetrics(reg prometheus.Registerer) *APIMetrics {
	f := promauto.With(reg)
	return &APIMetrics{
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pulse",
				Subsystem: "api",
				Name:      "latency_seconds",
				Help:      "Latency of engine endpoints",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		errors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pulse",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Errors by engine endpoint and code",
			},
			[]string{"endpoint", "code"},
		),
		rateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pulse",
				Subsystem: "api",
				Name:      "rate_limited_total",
				Help:      "Manual triggers rejected by the rate limiter",
			},
		),
		streams: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pulse",
				Subsystem: "api",
				Name:      "open_streams",
				Help:      "Open push streams by transport",
			},
			[]string{"transport"},
		),
	}
}

func (m *APIMetrics) Observe(endpoint string, start time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (m *APIMetrics) Error(endpoint, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(endpoint, code).Inc()
}

func (m *APIMetrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// StreamOpened increments the open stream gauge and returns its decrement.
func (m *APIMetrics) StreamOpened(transport string) func() {
	if m == nil {
		return func() {}
	}
	g := m.streams.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}
