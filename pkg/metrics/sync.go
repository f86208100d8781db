// Package metrics exposes Prometheus instruments for the sync jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-channelsync/pkg/batch"
)

// jobLabel avoids "job", which the Pushgateway reserves for grouping.
const jobLabel = "sync_job"

// SyncJobMetrics records run metadata for the batch jobs.
type SyncJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewSyncJobMetrics registers the job metrics on the provided registerer. A
// nil registerer yields a no-op instance.
func NewSyncJobMetrics(reg prometheus.Registerer) *SyncJobMetrics {
	if reg == nil {
		return &SyncJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_sync_job_duration_seconds",
		Help:    "Duration of channel sync jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{jobLabel})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sync_job_success_total",
		Help: "Channel sync job runs that finished without a run-level error.",
	}, []string{jobLabel})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sync_job_failure_total",
		Help: "Channel sync job runs that aborted with a run-level error.",
	}, []string{jobLabel})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sync_items_total",
		Help: "Items handled by channel sync jobs by outcome.",
	}, []string{jobLabel, "outcome"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "channel_sync_job_last_success_timestamp_seconds",
		Help: "Unix time of the last channel sync run without a run-level error.",
	}, []string{jobLabel})
	reg.MustRegister(duration, success, failure, items, lastSuccess)
	return &SyncJobMetrics{
		duration:    duration,
		success:     success,
		failure:     failure,
		items:       items,
		lastSuccess: lastSuccess,
	}
}

// ObserveDuration records the duration for the named job.
func (m *SyncJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter and stamps the last success time.
func (m *SyncJobMetrics) IncSuccess(job string, at time.Time) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(job)).Inc()
	m.lastSuccess.WithLabelValues(normalizeLabel(job)).Set(float64(at.Unix()))
}

// IncFailure increments the failure counter for the named job.
func (m *SyncJobMetrics) IncFailure(job string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// ObserveSummary adds a run's item outcomes to the item counter.
func (m *SyncJobMetrics) ObserveSummary(job string, summary batch.Summary) {
	if m == nil || m.items == nil {
		return
	}
	label := normalizeLabel(job)
	m.items.WithLabelValues(label, string(batch.OutcomeSucceeded)).Add(float64(summary.Succeeded))
	m.items.WithLabelValues(label, string(batch.OutcomeSkipped)).Add(float64(summary.Skipped))
	m.items.WithLabelValues(label, string(batch.OutcomeFailed)).Add(float64(summary.Failed))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
