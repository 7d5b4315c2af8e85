package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron job outcomes used for the result label.
const (
	CronResultSuccess = "success"
	CronResultFailure = "failure"
	CronResultTimeout = "timeout"
)

// CronMetrics tracks scheduled job runs in the cron worker.
type CronMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

// NewCronMetrics registers the cron collectors. A nil registerer yields no-op
// collectors.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Cron job executions, by job and result.",
		}, []string{"job", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Wall time of cron job executions.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cron_cycles_skipped_total",
			Help: "Cron cycles skipped because another worker held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one execution of job. A context deadline counts as a
// timeout rather than a plain failure.
func (c *CronMetrics) ObserveRun(job string, duration time.Duration, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	c.runs.WithLabelValues(job, CronResult(err)).Inc()
	if err == nil {
		c.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// IncSkipped counts a cycle that lost the leader lock.
func (c *CronMetrics) IncSkipped() {
	if c == nil || c.skipped == nil {
		return
	}
	c.skipped.Inc()
}

// CronResult maps a job error onto the result label.
func CronResult(err error) string {
	switch {
	case err == nil:
		return CronResultSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return CronResultTimeout
	default:
		return CronResultFailure
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
