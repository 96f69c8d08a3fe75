package download

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForEnqueuedJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_download_jobs_enqueued_total",
		Help: "The total number of chapter download jobs enqueued",
	})

	promCounterForCompletedJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_download_jobs_completed_total",
		Help: "The total number of chapter download jobs completed",
	})

	promCounterForFailedJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_download_jobs_failed_total",
		Help: "The total number of chapter download jobs failed",
	})

	promCounterForCanceledJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_download_jobs_canceled_total",
		Help: "The total number of chapter download jobs canceled",
	})

	promCounterForPagesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mira_pool_download_pages_written_total",
		Help: "The total number of chapter pages written to disk",
	})

	promGaugeForPendingJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mira_pool_download_jobs_pending",
		Help: "The number of chapter download jobs in the queue",
	})
)
