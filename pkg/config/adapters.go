package config

import (
	"fmt"

	"github.com/marmos91/dittobox/pkg/adapter"
	httpadapter "github.com/marmos91/dittobox/pkg/adapter/http"
	"github.com/marmos91/dittobox/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete DittoBox configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	// Create HTTP adapter if enabled
	if cfg.Adapters.HTTP.Enabled {
		if err := cfg.Adapters.HTTP.Validate(); err != nil {
			return nil, fmt.Errorf("invalid HTTP adapter config: %w", err)
		}
		adapters = append(adapters, httpadapter.New(cfg.Adapters.HTTP, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
