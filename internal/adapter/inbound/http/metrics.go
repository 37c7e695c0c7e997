package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for zeno.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	SubmissionsTotal  *prometheus.CounterVec
	RateLimitRefusals *prometheus.CounterVec
	TokensIssued      prometheus.Counter
	MaintenanceMode   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zeno",
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "zeno",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		SubmissionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zeno",
				Name:      "submissions_total",
				Help:      "Gated form submissions by operation and outcome",
			},
			[]string{"operation", "outcome"}, // outcome=accepted/refused/failed
		),
		RateLimitRefusals: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "zeno",
				Name:      "rate_limit_refusals_total",
				Help:      "Submissions refused by the rate limit gate",
			},
			[]string{"operation"},
		),
		TokensIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "zeno",
				Name:      "csrf_tokens_issued_total",
				Help:      "CSRF tokens issued, including rotations",
			},
		),
		MaintenanceMode: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "zeno",
				Name:      "maintenance_mode",
				Help:      "1 while maintenance mode is active",
			},
		),
	}
}
