package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics instruments the background workers: outbox publisher batches
// and analytics fact messages. A nil *JobMetrics records nothing.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	parked   *prometheus.CounterVec
}

func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return nil
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	j := &JobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ff_job_duration_seconds",
			Help:    "Duration of background job batches in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		success: counter("ff_job_success_total", "Successful background job items.", "job"),
		failure: counter("ff_job_failure_total", "Failed background job items.", "job"),
		parked:  counter("ff_job_parked_total", "Items moved to a dead-letter table.", "job", "reason"),
	}
	reg.MustRegister(j.duration, j.success, j.failure, j.parked)
	return j
}

func (j *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if j == nil {
		return
	}
	j.duration.WithLabelValues(label(job)).Observe(d.Seconds())
}

// Time starts a duration observation; call the returned func when done.
func (j *JobMetrics) Time(job string) func() {
	started := time.Now()
	return func() { j.ObserveDuration(job, time.Since(started)) }
}

func (j *JobMetrics) IncSuccess(job string) {
	if j == nil {
		return
	}
	j.success.WithLabelValues(label(job)).Inc()
}

func (j *JobMetrics) IncFailure(job string) {
	if j == nil {
		return
	}
	j.failure.WithLabelValues(label(job)).Inc()
}

// IncParked counts an item given up on, by reason.
func (j *JobMetrics) IncParked(job, reason string) {
	if j == nil {
		return
	}
	j.parked.WithLabelValues(label(job), label(reason)).Inc()
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
