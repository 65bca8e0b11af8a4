package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records scheduled job runs. A nil *CronJobMetrics is valid.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	expired  prometheus.Counter
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of cron jobs in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_runs_total",
		Help:      "Cron job executions by outcome (success, failure).",
	}, []string{"job", "outcome"})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_expired_total",
		Help:      "Pending orders failed by the expiry job.",
	})
	reg.MustRegister(duration, runs, expired)
	return &CronJobMetrics{duration: duration, runs: runs, expired: expired}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncRun counts one run of job with the given outcome.
func (c *CronJobMetrics) IncRun(job, outcome string) {
	if c == nil || c.runs == nil {
		return
	}
	c.runs.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

// AddExpired counts orders moved to failed by the expiry job.
func (c *CronJobMetrics) AddExpired(n int) {
	if c == nil || c.expired == nil || n <= 0 {
		return
	}
	c.expired.Add(float64(n))
}
