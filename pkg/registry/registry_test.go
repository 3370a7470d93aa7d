package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittobox/pkg/service"
	blobmemory "github.com/marmos91/dittobox/pkg/store/blob/memory"
	metamemory "github.com/marmos91/dittobox/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenBlobs struct {
	*blobmemory.MemoryBlobStore
}

func (brokenBlobs) Healthcheck(context.Context) error { return errors.New("disk gone") }
func (brokenBlobs) Close() error                      { return errors.New("close failed") }

func newServices(t *testing.T) Services {
	t.Helper()
	blobs := blobmemory.NewMemoryBlobStore()
	meta := metamemory.NewMemoryMetadataStore()
	auth, err := service.NewAuthService(meta, service.AuthConfig{BcryptCost: 4}, nil)
	require.NoError(t, err)
	return Services{
		Catalog: service.NewCatalogService(blobs, meta, service.CatalogConfig{}, nil),
		Shares:  service.NewShareManager(blobs, meta, service.SharingConfig{}, nil),
		Auth:    auth,
	}
}

func TestNew_RequiresEverything(t *testing.T) {
	svc := newServices(t)

	_, err := New(nil, metamemory.NewMemoryMetadataStore(), svc)
	assert.Error(t, err)

	_, err = New(blobmemory.NewMemoryBlobStore(), nil, svc)
	assert.Error(t, err)

	_, err = New(blobmemory.NewMemoryBlobStore(), metamemory.NewMemoryMetadataStore(), Services{})
	assert.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	reg, err := New(blobmemory.NewMemoryBlobStore(), metamemory.NewMemoryMetadataStore(), newServices(t))
	require.NoError(t, err)

	h := reg.Healthcheck(context.Background())
	assert.True(t, h.Healthy())
	assert.Len(t, h.Checks, 2)

	broken, err := New(brokenBlobs{blobmemory.NewMemoryBlobStore()}, metamemory.NewMemoryMetadataStore(), newServices(t))
	require.NoError(t, err)
	h = broken.Healthcheck(context.Background())
	assert.False(t, h.Healthy())
	assert.EqualError(t, h.Checks["blob"], "disk gone")
	assert.NoError(t, h.Checks["metadata"])
}

func TestClose_AggregatesAndIsIdempotent(t *testing.T) {
	reg, err := New(brokenBlobs{blobmemory.NewMemoryBlobStore()}, metamemory.NewMemoryMetadataStore(), newServices(t))
	require.NoError(t, err)

	first := reg.Close()
	require.Error(t, first)
	assert.Contains(t, first.Error(), "close blob store")
	assert.Equal(t, first, reg.Close())
}
