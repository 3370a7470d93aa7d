// Package metrics provides optional Prometheus metrics for DittoBox
// components.
//
// Every component takes a metrics interface and falls back to a no-op
// implementation when none is supplied, so DittoBox runs the same with or
// without metrics collection. Prometheus-backed implementations live in
// pkg/metrics/prometheus.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	svcMetrics := prometheus.NewServiceMetrics()
//	httpMetrics := prometheus.NewHTTPMetrics()
//
//	// Or pass nil for no-op behavior
//	catalog := service.NewCatalogService(blobs, meta, cfg, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all DittoBox metrics.
	// Written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored. The registry also carries
// the Go runtime and process collectors.
//
// If not called, GetRegistry() will return nil and all metrics constructors
// will return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
