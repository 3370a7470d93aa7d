package metrics

import "time"

// GCMetrics records garbage collection runs.
type GCMetrics interface {
	// RecordRun records a completed (or failed) collection.
	RecordRun(duration time.Duration, deletedBlobs, failedBlobs, sweptTokens uint64, err error)
}

// NewNoopGCMetrics returns a GCMetrics that records nothing.
func NewNoopGCMetrics() GCMetrics {
	return noopGCMetrics{}
}

type noopGCMetrics struct{}

func (noopGCMetrics) RecordRun(time.Duration, uint64, uint64, uint64, error) {}
