package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	blobmemory "github.com/marmos91/dittobox/pkg/store/blob/memory"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	metamemory "github.com/marmos91/dittobox/pkg/store/metadata/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// env wires all three services over in-memory stores.
type env struct {
	blobs   *faultyBlobStore
	meta    *metamemory.MemoryMetadataStore
	catalog *CatalogService
	shares  *ShareManager
	auth    *AuthService
	clock   *fakeClock
}

func newEnv(t *testing.T, catalogCfg CatalogConfig) *env {
	t.Helper()

	blobs := &faultyBlobStore{MemoryBlobStore: blobmemory.NewMemoryBlobStore()}
	meta := metamemory.NewMemoryMetadataStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	auth, err := NewAuthService(meta, AuthConfig{BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	auth.now = clock.Now

	catalog := NewCatalogService(blobs, meta, catalogCfg, nil)
	catalog.SetClock(clock.Now)

	shares := NewShareManager(blobs, meta, SharingConfig{DefaultTTL: time.Hour, MaxTTL: 24 * time.Hour}, nil)
	shares.SetClock(clock.Now)

	return &env{blobs: blobs, meta: meta, catalog: catalog, shares: shares, auth: auth, clock: clock}
}

func (e *env) register(t *testing.T, username string) {
	t.Helper()
	_, err := e.auth.Register(context.Background(), username, username+"@example.com", "secret-"+username)
	require.NoError(t, err)
}

func (e *env) upload(t *testing.T, owner, filename, content string) *metadata.FileRecord {
	t.Helper()
	rec, err := e.catalog.Upload(context.Background(), owner, filename, strings.NewReader(content))
	require.NoError(t, err)
	return rec
}

func (e *env) download(t *testing.T, owner string, id int64) string {
	t.Helper()
	rc, _, err := e.catalog.Download(context.Background(), owner, id)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// blobCount returns the number of blobs currently stored.
func (e *env) blobCount(t *testing.T) int {
	t.Helper()
	infos, err := e.blobs.List(context.Background())
	require.NoError(t, err)
	return len(infos)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errInjected = errors.New("injected failure")

// faultyBlobStore wraps the memory store with switchable failures.
type faultyBlobStore struct {
	*blobmemory.MemoryBlobStore

	failPut    atomic.Bool
	failCopy   atomic.Bool
	failDelete atomic.Bool
	deletes    atomic.Int32
}

func (f *faultyBlobStore) Put(ctx context.Context, ref blob.Ref, r io.Reader) (int64, error) {
	if f.failPut.Load() {
		return 0, errInjected
	}
	return f.MemoryBlobStore.Put(ctx, ref, r)
}

func (f *faultyBlobStore) Copy(ctx context.Context, src, dst blob.Ref) error {
	if f.failCopy.Load() {
		return errInjected
	}
	return f.MemoryBlobStore.Copy(ctx, src, dst)
}

func (f *faultyBlobStore) Delete(ctx context.Context, ref blob.Ref) error {
	f.deletes.Add(1)
	if f.failDelete.Load() {
		return errInjected
	}
	return f.MemoryBlobStore.Delete(ctx, ref)
}

// faultyMetaStore fails selected metadata operations.
type faultyMetaStore struct {
	metadata.MetadataStore
	failRename atomic.Bool
	failCreate atomic.Bool
}

func (f *faultyMetaStore) RenameFile(ctx context.Context, id int64, expected blob.Ref, newName string, newRef blob.Ref) (*metadata.FileRecord, error) {
	if f.failRename.Load() {
		return nil, metadata.NewIOError("rename", errInjected)
	}
	return f.MetadataStore.RenameFile(ctx, id, expected, newName, newRef)
}

func (f *faultyMetaStore) CreateFile(ctx context.Context, file *metadata.FileRecord) error {
	if f.failCreate.Load() {
		return metadata.NewIOError("create", errInjected)
	}
	return f.MetadataStore.CreateFile(ctx, file)
}
