package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics tracks sweep job runs, errors and durations.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = &SchedulerMetrics{
			jobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fieldtrip_scheduler_job_runs_total",
				Help: "Number of scheduler job executions.",
			}, []string{"job"}),
			jobErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fieldtrip_scheduler_job_errors_total",
				Help: "Number of scheduler job executions that returned an error.",
			}, []string{"job"}),
			jobTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fieldtrip_scheduler_job_timeouts_total",
				Help: "Number of scheduler job executions cut off by their deadline.",
			}, []string{"job"}),
			jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fieldtrip_scheduler_job_duration_seconds",
				Help:    "Scheduler job wall time.",
				Buckets: prometheus.DefBuckets,
			}, []string{"job"}),
		}
	})
	return scheduler
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// PaymentMetrics tracks webhook ingestion outcomes and refund attempts.
type PaymentMetrics struct {
	webhookEvents  *prometheus.CounterVec
	refundAttempts *prometheus.CounterVec
}

var (
	paymentOnce sync.Once
	payment     *PaymentMetrics
)

func Payment() *PaymentMetrics {
	paymentOnce.Do(func() {
		payment = &PaymentMetrics{
			webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fieldtrip_webhook_events_total",
				Help: "Webhook events by type and outcome.",
			}, []string{"event_type", "outcome"}),
			refundAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "fieldtrip_refund_attempts_total",
				Help: "Refund attempts by outcome.",
			}, []string{"outcome"}),
		}
	})
	return payment
}

const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeFailed    = "failed"

	RefundOutcomeSucceeded = "succeeded"
	RefundOutcomeFailed    = "failed"
)

func (m *PaymentMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *PaymentMetrics) IncRefundAttempt(outcome string) {
	m.refundAttempts.WithLabelValues(outcome).Inc()
}
