// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	FCMPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fcm_dispatch_publishes_total",
			Help: "Push-dispatch publishes to the sendFcm topic by outcome",
		},
		[]string{"outcome"}, // sent, failed, skipped
	)

	SettingsFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_settings_fallbacks_total",
			Help: "Workflow runs that fell back to an empty recipient list",
		},
		[]string{"reason"}, // read_error, missing
	)

	MailJobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_jobs_enqueued_total",
			Help: "Mail-queue writes by outcome",
		},
		[]string{"outcome"}, // created, duplicate, failed
	)

	MailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_deliveries_total",
			Help: "Mail-queue documents processed by the delivery poller",
		},
		[]string{"outcome"}, // success, error
	)
)
