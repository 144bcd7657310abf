// Package telemetry holds the Prometheus registry and the computed health
// snapshot the control plane exposes at /metrics and /health. Unlike the
// teacher's package-level globals, metrics are held on a Telemetry value
// threaded through the process as a dependency.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry owns one Prometheus registry plus the metric handles every
// component records against.
type Telemetry struct {
	registry *prometheus.Registry

	EnqueueTotal     *prometheus.CounterVec
	RateLimitRejects prometheus.Counter
	JobsSucceeded    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	RetryAttempts    *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	DLQDepth         *prometheus.GaugeVec
	JobgroupsActive  prometheus.Gauge
	JobDuration      *prometheus.HistogramVec
}

// New constructs and registers the full metric set.
func New() *Telemetry {
	reg := prometheus.NewRegistry()

	t := &Telemetry{
		registry: reg,
		EnqueueTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivehub_enqueue_total", Help: "Jobs accepted by the control plane, by worker and priority.",
		}, []string{"worker", "priority"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archivehub_rate_limit_rejects_total", Help: "Enqueue requests rejected by the tenant rate limiter.",
		}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivehub_jobs_succeeded_total", Help: "Jobs that completed successfully, by worker.",
		}, []string{"worker"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivehub_jobs_failed_total", Help: "Jobs that failed after their final attempt, by worker.",
		}, []string{"worker"}),
		JobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivehub_jobs_dead_lettered_total", Help: "Jobs moved to a dead-letter queue, by worker.",
		}, []string{"worker"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivehub_retry_attempts_total", Help: "Retry attempts taken by the resilience envelope, by worker.",
		}, []string{"worker"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archivehub_queue_depth", Help: "Current list length of a queue key.",
		}, []string{"queue"}),
		DLQDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archivehub_dlq_depth", Help: "Current list length of a dead-letter queue key.",
		}, []string{"worker"}),
		JobgroupsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archivehub_jobgroups_active", Help: "Non-terminal jobgroups across all tenants.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "archivehub_job_duration_seconds", Help: "Job handler duration, by worker and outcome.",
		}, []string{"worker", "outcome"}),
	}

	reg.MustRegister(
		t.EnqueueTotal, t.RateLimitRejects, t.JobsSucceeded, t.JobsFailed,
		t.JobsDeadLettered, t.RetryAttempts, t.QueueDepth, t.DLQDepth,
		t.JobgroupsActive, t.JobDuration,
	)
	return t
}

// Handler exposes the registry over HTTP.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
