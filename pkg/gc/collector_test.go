package gc

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	blobmemory "github.com/marmos91/dittobox/pkg/store/blob/memory"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	metamemory "github.com/marmos91/dittobox/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	blobs *blobmemory.MemoryBlobStore
	meta  *metamemory.MemoryMetadataStore
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		blobs: blobmemory.NewMemoryBlobStore(),
		meta:  metamemory.NewMemoryMetadataStore(),
		clock: &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.blobs.SetClock(f.clock.Now)
	return f
}

func (f *fixture) collector(t *testing.T, cfg Config) *Collector {
	t.Helper()
	c, err := NewCollector(f.blobs, f.meta, cfg, nil)
	require.NoError(t, err)
	c.SetClock(f.clock.Now)
	return c
}

func (f *fixture) putBlob(t *testing.T, name string) blob.Ref {
	t.Helper()
	ref, err := blob.NewRef("alice", name)
	require.NoError(t, err)
	_, err = f.blobs.Put(context.Background(), ref, bytes.NewReader([]byte(name)))
	require.NoError(t, err)
	return ref
}

func (f *fixture) putFile(t *testing.T, name string) blob.Ref {
	t.Helper()
	ref := f.putBlob(t, name)
	now := f.clock.Now()
	require.NoError(t, f.meta.CreateFile(context.Background(), &metadata.FileRecord{
		Owner: "alice", Filename: name, ContentRef: ref, Size: int64(len(name)),
		IsPrivate: true, CreatedAt: now, UpdatedAt: now,
	}))
	return ref
}

func TestCollect_DeletesOldOrphansOnly(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{GracePeriod: time.Hour})

	referenced := f.putFile(t, "kept.txt")
	oldOrphan := f.putBlob(t, "old-orphan")
	f.clock.Advance(2 * time.Hour)
	youngOrphan := f.putBlob(t, "young-orphan")

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(3), stats.ExistingCount)
	assert.Equal(t, uint64(1), stats.ReferencedCount)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(1), stats.YoungCount)
	assert.Equal(t, uint64(1), stats.DeletedCount)

	ctx := context.Background()
	exists := func(ref blob.Ref) bool {
		ok, err := f.blobs.Exists(ctx, ref)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, exists(referenced))
	assert.False(t, exists(oldOrphan))
	assert.True(t, exists(youngOrphan), "inside grace period")
}

func TestCollect_DryRun(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{GracePeriod: time.Minute, DryRun: true})

	orphan := f.putBlob(t, "orphan")
	f.clock.Advance(time.Hour)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.OrphanedCount)
	assert.Equal(t, uint64(0), stats.DeletedCount)

	ok, err := f.blobs.Exists(context.Background(), orphan)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCollect_Batches(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{GracePeriod: time.Minute, BatchSize: 2})

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		f.putBlob(t, name)
	}
	f.clock.Advance(time.Hour)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.DeletedCount)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestCollect_SweepsExpiredTokens(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{})
	ctx := context.Background()
	now := f.clock.Now()

	for i, expires := range []time.Time{now.Add(-time.Minute), now, now.Add(time.Hour)} {
		require.NoError(t, f.meta.CreateShareToken(ctx, &metadata.ShareToken{
			TokenHash: string(rune('a' + i)),
			FileID:    1,
			Owner:     "alice",
			Filename:  "a.txt",
			IssuedAt:  now.Add(-2 * time.Hour),
			ExpiresAt: expires,
		}))
	}

	stats, err := c.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.ExpiredTokens)

	_, err = f.meta.GetShareToken(ctx, "c")
	assert.NoError(t, err, "live token kept")
}

func TestCollect_CancelledContext(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.RunNow(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewCollector_RequiresLister(t *testing.T) {
	_, err := NewCollector(nonListing{}, metamemory.NewMemoryMetadataStore(), Config{}, nil)
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{Enabled: true, Interval: 10 * time.Millisecond})

	c.Start()
	c.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx), "second stop is a no-op")
}

func TestStop_BeforeStart(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, Config{Enabled: true})
	assert.NoError(t, c.Stop(context.Background()))
}

// nonListing is a BlobStore without List.
type nonListing struct{ blob.BlobStore }
