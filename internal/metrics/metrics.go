package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// PanelRequests counts requests against the remote panel by endpoint and outcome
	PanelRequests *prometheus.CounterVec
	// JobRuns counts recurring job executions by job name and outcome
	JobRuns *prometheus.CounterVec
	// JobDuration tracks recurring job execution time
	JobDuration *prometheus.HistogramVec
	// SnapshotsRecorded counts usage snapshots written to the store
	SnapshotsRecorded prometheus.Counter
	// SnapshotsPurged counts snapshots deleted after a delivered report
	SnapshotsPurged prometheus.Counter
	// NotificationsSent counts outbound notifications by kind and outcome
	NotificationsSent *prometheus.CounterVec
	// AccountsTracked tracks the number of active registered accounts
	AccountsTracked prometheus.Gauge
	// HTTPRequestsTotal counts ops API requests
	HTTPRequestsTotal *prometheus.CounterVec
	// RequestLatency tracks ops API request latency
	RequestLatency *prometheus.HistogramVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		PanelRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panel_requests_total",
				Help:      "Total number of requests to the remote panel",
			},
			[]string{"endpoint", "status"},
		),
		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Total number of recurring job executions",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Recurring job execution time in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),
		SnapshotsRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_recorded_total",
				Help:      "Total number of usage snapshots recorded",
			},
		),
		SnapshotsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_purged_total",
				Help:      "Total number of usage snapshots purged after delivered reports",
			},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of outbound notifications",
			},
			[]string{"kind", "status"},
		),
		AccountsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "accounts_tracked",
				Help:      "Number of active registered accounts",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"endpoint", "method", "status"},
		),
	}

	registry.MustRegister(
		m.PanelRequests,
		m.JobRuns,
		m.JobDuration,
		m.SnapshotsRecorded,
		m.SnapshotsPurged,
		m.NotificationsSent,
		m.AccountsTracked,
		m.HTTPRequestsTotal,
		m.RequestLatency,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, used by tests to gather families
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPanelRequest records one request against the remote panel
func (m *Metrics) RecordPanelRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.PanelRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordJobRun records one recurring job execution
func (m *Metrics) RecordJobRun(job, status string) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
}

// ObserveJobDuration records how long a job body took
func (m *Metrics) ObserveJobDuration(job string, seconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(seconds)
}

// RecordSnapshot records one snapshot write
func (m *Metrics) RecordSnapshot() {
	if m == nil {
		return
	}
	m.SnapshotsRecorded.Inc()
}

// RecordPurge records purged snapshots
func (m *Metrics) RecordPurge(count int) {
	if m == nil {
		return
	}
	m.SnapshotsPurged.Add(float64(count))
}

// RecordNotification records one outbound notification attempt
func (m *Metrics) RecordNotification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(kind, status).Inc()
}

// SetAccountsTracked sets the active registered account gauge
func (m *Metrics) SetAccountsTracked(n int) {
	if m == nil {
		return
	}
	m.AccountsTracked.Set(float64(n))
}
