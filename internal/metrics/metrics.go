// Package metrics provides Prometheus collectors for bmsort.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. A value is registered on exactly one
// registry.
type Metrics struct {
	// Classifier
	ClassifierRequestsTotal   *prometheus.CounterVec
	ClassifierRequestDuration prometheus.Histogram

	// Runs
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RunProgress     prometheus.Gauge
	BookmarksFiled  prometheus.Counter
	CleanupFailures *prometheus.CounterVec

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg uses a
// private registry, which keeps tests independent.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ClassifierRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmsort_classifier_requests_total",
			Help: "Total number of classifier requests.",
		}, []string{"status"}), // status: "success" or "error"
		ClassifierRequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bmsort_classifier_request_duration_seconds",
			Help:    "Duration of classifier requests in seconds.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmsort_runs_total",
			Help: "Total number of analyze and organize runs.",
		}, []string{"op", "status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bmsort_run_duration_seconds",
			Help:    "Duration of analyze and organize runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"op"}),
		RunProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "bmsort_run_progress_percent",
			Help: "Progress of the current run, 0 to 100.",
		}),
		BookmarksFiled: f.NewCounter(prometheus.CounterOpts{
			Name: "bmsort_bookmarks_filed_total",
			Help: "Total number of bookmarks moved into category folders.",
		}),
		CleanupFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmsort_cleanup_failures_total",
			Help: "Store errors swallowed during evacuate and clear.",
		}, []string{"phase"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmsort_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bmsort_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordClassifierRequest records one classifier call.
func (m *Metrics) RecordClassifierRequest(err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ClassifierRequestsTotal.WithLabelValues(status).Inc()
	m.ClassifierRequestDuration.Observe(duration.Seconds())
}

// RecordRun records a finished analyze or organize run.
func (m *Metrics) RecordRun(op string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(op, status).Inc()
	m.RunDuration.WithLabelValues(op).Observe(duration.Seconds())
}
