package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	blobtesting "github.com/marmos91/dittobox/pkg/store/blob/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FSBlobStore {
	t.Helper()
	store, err := NewFSBlobStore(context.Background(), FSBlobStoreConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestFSBlobStore(t *testing.T) {
	suite := &blobtesting.StoreTestSuite{
		NewStore: func(t *testing.T) blob.BlobStore {
			return newTestStore(t)
		},
	}
	suite.Run(t)
}

func TestFSBlobStore_LayoutUnderBase(t *testing.T) {
	store := newTestStore(t)
	ref, err := blob.NewRef("alice", "notes.txt")
	require.NoError(t, err)

	_, err = store.Put(context.Background(), ref, strings.NewReader("hi"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.BasePath(), "alice", strings.TrimPrefix(string(ref), "alice/")))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestFSBlobStore_ListSkipsTempFiles(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(store.BasePath(), "alice")
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, tempPrefix+"inflight"), []byte("x"), 0640))

	infos, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestFSBlobStore_HealthcheckMissingBase(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.RemoveAll(store.BasePath()))

	assert.Error(t, store.Healthcheck(context.Background()))
}

func TestNewFSBlobStore_RequiresPath(t *testing.T) {
	_, err := NewFSBlobStore(context.Background(), FSBlobStoreConfig{})
	assert.Error(t, err)
}

func TestFSBlobStore_CopyStampsFreshModTime(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	src, err := blob.NewRef("alice", "old.txt")
	require.NoError(t, err)
	_, err = store.Put(ctx, src, strings.NewReader("hello"))
	require.NoError(t, err)

	srcPath := filepath.Join(store.BasePath(), filepath.FromSlash(string(src)))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(srcPath, old, old))

	dst, err := blob.NewRef("alice", "new.txt")
	require.NoError(t, err)
	require.NoError(t, store.Copy(ctx, src, dst))

	infos, err := store.List(ctx)
	require.NoError(t, err)
	for _, info := range infos {
		if info.Ref == dst {
			assert.WithinDuration(t, time.Now(), info.ModTime, time.Minute)
			return
		}
	}
	t.Fatalf("copied blob %s not listed", dst)
}
