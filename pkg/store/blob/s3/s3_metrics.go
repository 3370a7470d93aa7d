package s3

import (
	"io"
	"time"
)

// S3Metrics provides observability for S3 operations.
//
// Metrics collection is optional: when no implementation is supplied the
// store records nothing. pkg/metrics/prometheus provides the Prometheus
// implementation.
type S3Metrics interface {
	// ObserveOperation records an S3 call with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred by read or write operations.
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                     {}

// metricsReadCloser counts bytes read from an object body and reports them
// on Close.
type metricsReadCloser struct {
	io.ReadCloser
	metrics   S3Metrics
	operation string
	bytesRead int64
}

func (m *metricsReadCloser) Read(p []byte) (n int, err error) {
	n, err = m.ReadCloser.Read(p)
	if n > 0 {
		m.bytesRead += int64(n)
	}
	return n, err
}

func (m *metricsReadCloser) Close() error {
	err := m.ReadCloser.Close()
	if m.bytesRead > 0 {
		m.metrics.RecordBytes(m.operation, m.bytesRead)
	}
	return err
}
