// Package registry bundles the stores and services a DittoBox server runs
// on, so protocol adapters receive one handle instead of wiring each
// dependency themselves.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/service"
	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
)

// Registry holds the shared backends and the services built on them.
//
// Example usage:
//
//	reg, err := registry.New(blobs, meta, registry.Services{
//	    Catalog: catalog,
//	    Shares:  shares,
//	    Auth:    auth,
//	})
//	adapter.SetRegistry(reg)
//
// Thread safety:
// All accessors are safe for concurrent use. Close is idempotent.
type Registry struct {
	blobs    blob.BlobStore
	metadata metadata.MetadataStore
	services Services

	closeOnce sync.Once
	closeErr  error
}

// Services groups the service-layer entry points.
type Services struct {
	Catalog *service.CatalogService
	Shares  *service.ShareManager
	Auth    *service.AuthService
}

// New creates a registry. Every store and service is required.
func New(blobs blob.BlobStore, meta metadata.MetadataStore, svc Services) (*Registry, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if meta == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if svc.Catalog == nil || svc.Shares == nil || svc.Auth == nil {
		return nil, fmt.Errorf("catalog, share, and auth services are required")
	}

	return &Registry{
		blobs:    blobs,
		metadata: meta,
		services: svc,
	}, nil
}

func (r *Registry) BlobStore() blob.BlobStore {
	return r.blobs
}

func (r *Registry) MetadataStore() metadata.MetadataStore {
	return r.metadata
}

func (r *Registry) Catalog() *service.CatalogService {
	return r.services.Catalog
}

func (r *Registry) Shares() *service.ShareManager {
	return r.services.Shares
}

func (r *Registry) Auth() *service.AuthService {
	return r.services.Auth
}

// Health is the result of probing every backend.
type Health struct {
	// Checks maps a component name ("blob", "metadata") to its error, nil
	// when healthy.
	Checks map[string]error
}

// Healthy reports whether every check passed.
func (h Health) Healthy() bool {
	for _, err := range h.Checks {
		if err != nil {
			return false
		}
	}
	return true
}

// Healthcheck checks both stores.
func (r *Registry) Healthcheck(ctx context.Context) Health {
	return Health{
		Checks: map[string]error{
			"blob":     r.blobs.Healthcheck(ctx),
			"metadata": r.metadata.Healthcheck(ctx),
		},
	}
}

// Close releases both stores. Errors from each are aggregated.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		var result *multierror.Error
		if err := r.metadata.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close metadata store: %w", err))
		}
		if err := r.blobs.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close blob store: %w", err))
		}
		r.closeErr = result.ErrorOrNil()
		if r.closeErr != nil {
			logger.Error("Registry close failed: %v", r.closeErr)
		}
	})
	return r.closeErr
}
