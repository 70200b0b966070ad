package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal   *prometheus.CounterVec
	tickDuration prometheus.Histogram
	tokenPrice   *prometheus.GaugeVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	subscribers  prometheus.Gauge
}

// New creates a Prometheus metrics recorder registered on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_ticks_total",
				Help: "Scheduler fires by result (completed, overrun, manual)",
			},
			[]string{"result"},
		),
		tickDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulse_tick_duration_seconds",
				Help:    "Duration of a full tick across all tokens",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		tokenPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulse_token_price",
				Help: "Last computed price per token in the smallest price unit",
			},
			[]string{"token"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		subscribers: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "pulse_stream_subscribers",
				Help: "Current number of live stream subscribers",
			},
		),
	}
}

// RecordTick records one scheduler fire.
func (r *Recorder) RecordTick(result string, d time.Duration) {
	r.ticksTotal.WithLabelValues(result).Inc()
	if d > 0 {
		r.tickDuration.Observe(d.Seconds())
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordPrice records the last price for a token.
func (r *Recorder) RecordPrice(token string, price int64) {
	r.tokenPrice.WithLabelValues(token).Set(float64(price))
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, d time.Duration) {
	r.latency.WithLabelValues(op).Observe(d.Seconds())
}

// SetSubscribers records the live subscriber count.
func (r *Recorder) SetSubscribers(n int) {
	r.subscribers.Set(float64(n))
}
