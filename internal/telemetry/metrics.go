package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobRuns             = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scheduler_job_runs_total", Help: "Job executions by outcome"}, []string{"job", "outcome"})
	JobClaimsSkipped    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "scheduler_claims_skipped_total", Help: "Ticks skipped because another run holds the window"}, []string{"job"})
	JobDuration         = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "scheduler_job_duration_seconds", Help: "Job execution time", Buckets: prometheus.DefBuckets}, []string{"job"})
	EmailsEnqueued      = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outbox_emails_enqueued_total", Help: "Notifications written to the outbox"}, []string{"kind"})
	EmailsSent          = prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_emails_sent_total", Help: "Notifications delivered"})
	EmailsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_emails_failed_total", Help: "Delivery attempts that failed and will retry"})
	EmailsDropped       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outbox_emails_dropped_total", Help: "Notifications removed without delivery"}, []string{"reason"})
	MailThrottled       = prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_mail_throttled_total", Help: "Delivery batches cut short by the send rate limit"})
	OutboxDepth         = prometheus.NewGauge(prometheus.GaugeOpts{Name: "outbox_depth", Help: "Pending notifications after the last delivery tick"})
	MartImports         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "mart_imports_total", Help: "Processed MART messages by outcome"}, []string{"outcome"})
	AccountsDeactivated = prometheus.NewCounter(prometheus.CounterOpts{Name: "accounts_deactivated_total", Help: "Accounts deactivated at end of tour"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobRuns,
			JobClaimsSkipped,
			JobDuration,
			EmailsEnqueued,
			EmailsSent,
			EmailsFailed,
			EmailsDropped,
			MailThrottled,
			OutboxDepth,
			MartImports,
			AccountsDeactivated,
		)
	})
	return promhttp.Handler()
}
