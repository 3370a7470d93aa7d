package config

import (
	"github.com/marmos91/dittobox/pkg/metrics"
	promMetrics "github.com/marmos91/dittobox/pkg/metrics/prometheus"
	blobs3 "github.com/marmos91/dittobox/pkg/store/blob/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Service records catalog, share and auth operations (never nil)
	Service metrics.ServiceMetrics

	// HTTP records requests served by the HTTP adapter (never nil)
	HTTP metrics.HTTPMetrics

	// GC records garbage collection runs (never nil)
	GC metrics.GCMetrics

	// S3 records S3 blob store calls (nil if disabled)
	S3 blobs3.S3Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates Prometheus-backed metrics instances for all components
//
// The registry is exposed by the HTTP adapter at /metrics; there is no
// separate metrics listener.
//
// If metrics are disabled:
//   - Returns no-op metrics implementations (zero overhead)
//
// Parameters:
//   - cfg: The complete DittoBox configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		// Metrics disabled - return no-op implementations
		return &MetricsResult{
			Service: metrics.NewNoopServiceMetrics(),
			HTTP:    metrics.NewNoopHTTPMetrics(),
			GC:      metrics.NewNoopGCMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	return &MetricsResult{
		Service: promMetrics.NewServiceMetrics(),
		HTTP:    promMetrics.NewHTTPMetrics(),
		GC:      promMetrics.NewGCMetrics(),
		S3:      promMetrics.NewS3Metrics(),
	}
}
