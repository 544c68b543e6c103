// Package metrics exposes the Prometheus collectors for ipdesk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow metrics
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipdesk_transitions_total",
			Help: "Committed lifecycle transitions by entity and ledger action",
		},
		[]string{"entity", "action"},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipdesk_conflicts_total",
			Help: "Optimistic concurrency conflicts by engine operation",
		},
		[]string{"operation"},
	)

	// Sweep metrics
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ipdesk_sweep_duration_seconds",
			Help:    "Time taken by one expiration sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ipdesk_sweep_expired_total",
			Help: "Total number of addresses moved to expired by the sweeper",
		},
	)

	// Inventory metrics
	IPsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipdesk_ips",
			Help: "Number of tracked addresses by status",
		},
		[]string{"status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipdesk_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ipdesk_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepExpiredTotal)
	prometheus.MustRegister(IPsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds on a histogram vector
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
