package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alerts
	alertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_created_total",
		Help: "Total number of alerts created",
	}, []string{"severity", "type", "channel"})

	alertsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_skipped_total",
		Help: "Total number of alert creations skipped by deduplication",
	}, []string{"reason", "check_id"})

	alertsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_failed_total",
		Help: "Total number of alert creations that failed",
	}, []string{"check_id"})

	alertsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_alerts_resolved_total",
		Help: "Total number of alerts resolved",
	}, []string{"by"})

	alertsAcknowledged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_alerts_acknowledged_total",
		Help: "Total number of alerts acknowledged",
	})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_notifications_total",
		Help: "Total number of alert notifications",
	}, []string{"status"})

	// Checks
	checkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitoring_check_duration_seconds",
		Help:    "Duration of a single check execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"check_id"})

	checkResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_check_results_total",
		Help: "Check executions by outcome",
	}, []string{"check_id", "status"})

	// Fatigue
	fatigueSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_fatigue_signals_total",
		Help: "Fatigue signals detected",
	}, []string{"severity", "entity_type"})

	// Runs
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitoring_run_duration_seconds",
		Help:    "Duration of a full monitoring run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	clientRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_client_runs_total",
		Help: "Per client run outcomes",
	}, []string{"status"})

	runErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_run_errors_total",
		Help: "Errors collected during runs",
	}, []string{"kind"})

	metricSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitoring_metric_sync_duration_seconds",
		Help:    "Duration of metric syncs per channel",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})

	// HTTP
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monitoring_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// Cache
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitoring_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// Workers
	workerLastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monitoring_worker_last_run_timestamp",
		Help: "Unix timestamp of last worker run",
	}, []string{"worker"})

	workerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_worker_runs_total",
		Help: "Total number of worker runs",
	}, []string{"worker"})

	workerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_worker_errors_total",
		Help: "Total number of worker errors",
	}, []string{"worker"})
)

func RecordWorkerRun(workerName string) {
	workerLastRun.WithLabelValues(workerName).SetToCurrentTime()
	workerRunsTotal.WithLabelValues(workerName).Inc()
}

func RecordWorkerError(workerName string) {
	workerErrors.WithLabelValues(workerName).Inc()
}

func RecordHTTPRequest(method, endpoint string, duration float64, statusCode int) {
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
	status := "success"
	if statusCode >= 400 {
		status = "error"
	}
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}
