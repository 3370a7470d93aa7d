package prometheus

import (
	"time"

	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type gcMetrics struct {
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	blobsDeleted prometheus.Counter
	blobsFailed  prometheus.Counter
	tokensSwept  prometheus.Counter
	lastRun      prometheus.Gauge
}

// NewGCMetrics creates a Prometheus-backed GCMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewGCMetrics() metrics.GCMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopGCMetrics()
	}
	return newGCMetrics(metrics.GetRegistry())
}

func newGCMetrics(reg prometheus.Registerer) *gcMetrics {
	return &gcMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobox_gc_runs_total",
				Help: "Total number of garbage collection runs by status",
			},
			[]string{"status"},
		),
		runDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittobox_gc_run_duration_seconds",
				Help:    "Duration of garbage collection runs in seconds",
				Buckets: []float64{0.1, 1, 10, 60, 300, 600},
			},
		),
		blobsDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobox_gc_blobs_deleted_total",
				Help: "Total number of orphaned blobs deleted",
			},
		),
		blobsFailed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobox_gc_blobs_failed_total",
				Help: "Total number of orphaned blobs that failed to delete",
			},
		),
		tokensSwept: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittobox_gc_share_tokens_swept_total",
				Help: "Total number of expired share tokens removed",
			},
		),
		lastRun: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittobox_gc_last_run_timestamp_seconds",
				Help: "Unix time of the last completed garbage collection run",
			},
		),
	}
}

func (m *gcMetrics) RecordRun(duration time.Duration, deletedBlobs, failedBlobs, sweptTokens uint64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
	m.blobsDeleted.Add(float64(deletedBlobs))
	m.blobsFailed.Add(float64(failedBlobs))
	m.tokensSwept.Add(float64(sweptTokens))
	if err == nil {
		m.lastRun.SetToCurrentTime()
	}
}
