package metrics

import "time"

// ServiceMetrics records catalog, sharing, and auth operations.
//
// Outcome is "success" or the name of the error kind the operation failed
// with ("not_found", "forbidden", ...), so dashboards can separate client
// errors from storage failures without parsing messages.
type ServiceMetrics interface {
	// RecordOperation records one service call.
	RecordOperation(operation, outcome string, duration time.Duration)

	// RecordBytes records payload bytes moved by uploads and downloads.
	// Direction is "upload", "download", or "share_download".
	RecordBytes(direction string, bytes int64)
}

// NewNoopServiceMetrics returns a ServiceMetrics that records nothing.
func NewNoopServiceMetrics() ServiceMetrics {
	return noopServiceMetrics{}
}

type noopServiceMetrics struct{}

func (noopServiceMetrics) RecordOperation(string, string, time.Duration) {}
func (noopServiceMetrics) RecordBytes(string, int64)                     {}
