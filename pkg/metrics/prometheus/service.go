// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces in pkg/metrics.
//
// Constructors register their collectors with the global registry and
// return the no-op implementation when metrics are disabled.
package prometheus

import (
	"time"

	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serviceMetrics is the Prometheus implementation of metrics.ServiceMetrics.
type serviceMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewServiceMetrics creates a Prometheus-backed ServiceMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewServiceMetrics() metrics.ServiceMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServiceMetrics()
	}
	return newServiceMetrics(metrics.GetRegistry())
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	return &serviceMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobox_service_operations_total",
				Help: "Total number of service operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittobox_service_operation_duration_seconds",
				Help: "Duration of service operations in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1,     // 1s
					5,     // 5s
					30,    // 30s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittobox_service_bytes_total",
				Help: "Total payload bytes moved by uploads and downloads",
			},
			[]string{"direction"},
		),
	}
}

func (m *serviceMetrics) RecordOperation(operation, outcome string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *serviceMetrics) RecordBytes(direction string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}
