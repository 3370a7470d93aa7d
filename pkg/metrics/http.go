package metrics

import "time"

// HTTPMetrics records requests served by the HTTP adapter.
//
// Route is the chi route pattern ("/api/v1/files/{id}"), never the raw
// path, so label cardinality stays bounded.
type HTTPMetrics interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RequestStarted()
	RequestFinished()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, string, int, time.Duration) {}
func (noopHTTPMetrics) RequestStarted()                                  {}
func (noopHTTPMetrics) RequestFinished()                                 {}
