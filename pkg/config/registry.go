package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/gc"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/registry"
	"github.com/marmos91/dittobox/pkg/service"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// InitializeRegistry creates a fully configured Registry from the provided configuration.
//
// This function orchestrates the complete initialization process:
//  1. Creates the metadata store from cfg.Metadata
//  2. Creates the blob store from cfg.Blob
//  3. Builds the catalog, share, and auth services on top of both stores
//
// If any step fails, the stores created so far are closed before returning.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: Complete configuration loaded from config file
//   - m: Metrics from InitializeMetrics (nil records nothing)
//
// Returns:
//   - *registry.Registry: Fully initialized registry
//   - error: If store creation fails or a service rejects its configuration
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	reg, err := config.InitializeRegistry(ctx, cfg, config.InitializeMetrics(cfg))
//	if err != nil {
//	    log.Fatalf("Failed to initialize registry: %v", err)
//	}
func InitializeRegistry(ctx context.Context, cfg *Config, m *MetricsResult) (*registry.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if m == nil {
		m = &MetricsResult{}
	}

	logger.Debug("Initializing registry from configuration")

	// Step 1: Metadata store
	meta, err := CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata store: %w", err)
	}
	logger.Debug("Metadata store %q created", cfg.Metadata.Type)

	// Step 2: Blob store
	blobs, err := CreateBlobStore(ctx, &cfg.Blob, m.S3)
	if err != nil {
		return nil, closeOnFailure(fmt.Errorf("failed to create blob store: %w", err), meta)
	}
	logger.Debug("Blob store %q created", cfg.Blob.Type)

	// Step 3: Services
	services, err := buildServices(cfg, blobs, meta, m)
	if err != nil {
		return nil, closeOnFailure(err, meta, blobs)
	}

	reg, err := registry.New(blobs, meta, services)
	if err != nil {
		return nil, closeOnFailure(err, meta, blobs)
	}

	return reg, nil
}

// buildServices creates the catalog, share, and auth services.
func buildServices(cfg *Config, blobs blob.BlobStore, meta metadata.MetadataStore, m *MetricsResult) (registry.Services, error) {
	policy, err := service.ParseCollisionPolicy(cfg.Catalog.CollisionPolicy)
	if err != nil {
		return registry.Services{}, err
	}

	auth, err := service.NewAuthService(meta, service.AuthConfig{
		BcryptCost:        cfg.Auth.BcryptCost,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		LoginRate:         cfg.Auth.LoginRate,
		LoginBurst:        cfg.Auth.LoginBurst,
		LimiterSize:       cfg.Auth.LimiterSize,
		LimiterTTL:        cfg.Auth.LimiterTTL,
	}, m.Service)
	if err != nil {
		return registry.Services{}, fmt.Errorf("failed to create auth service: %w", err)
	}

	catalog := service.NewCatalogService(blobs, meta, service.CatalogConfig{
		MaxUploadSize:     cfg.Catalog.MaxUploadSize,
		MaxFilenameLength: cfg.Catalog.MaxFilenameLength,
		CollisionPolicy:   policy,
	}, m.Service)

	shares := service.NewShareManager(blobs, meta, service.SharingConfig{
		DefaultTTL: cfg.Sharing.DefaultTTL,
		MaxTTL:     cfg.Sharing.MaxTTL,
	}, m.Service)

	return registry.Services{
		Catalog: catalog,
		Shares:  shares,
		Auth:    auth,
	}, nil
}

type closer interface {
	Close() error
}

// closeOnFailure closes stores created before an initialization error and
// folds any close failures into the returned error.
func closeOnFailure(cause error, stores ...closer) error {
	result := multierror.Append(nil, cause)
	for _, s := range stores {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if len(result.Errors) == 1 {
		return cause
	}
	return result
}

// CreateCollector creates the orphaned blob collector for the registry's
// stores. It returns nil when garbage collection is disabled.
func CreateCollector(cfg *Config, reg *registry.Registry, m *MetricsResult) (*gc.Collector, error) {
	if !cfg.GC.Enabled {
		return nil, nil
	}

	var gcMetrics metrics.GCMetrics
	if m != nil {
		gcMetrics = m.GC
	}
	collector, err := gc.NewCollector(reg.BlobStore(), reg.MetadataStore(), cfg.GC, gcMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create garbage collector: %w", err)
	}
	return collector, nil
}
