package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload_RoundTrip(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	content := "%PDF-1.4 hello"

	rec := e.upload(t, "alice", "report.pdf", content)

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, "alice", rec.Owner)
	assert.Equal(t, "report.pdf", rec.Filename)
	assert.True(t, rec.IsPrivate, "uploads are private by default")
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.Checksum)
	assert.Equal(t, "application/pdf", rec.ContentType)
	assert.Equal(t, "alice", rec.ContentRef.Owner())

	assert.Equal(t, content, e.download(t, "alice", rec.ID))
}

func TestUpload_EmptyFile(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "empty.txt", "")
	assert.Equal(t, int64(0), rec.Size)
	assert.Equal(t, "", e.download(t, "alice", rec.ID))
}

func TestUpload_InvalidFilename(t *testing.T) {
	e := newEnv(t, CatalogConfig{})

	for _, name := range []string{"", "..", "../etc/passwd", "a/b", `a\b`, "nul\x00byte", strings.Repeat("x", 300)} {
		_, err := e.catalog.Upload(context.Background(), "alice", name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}
	assert.Equal(t, 0, e.blobCount(t), "nothing written for rejected names")
}

func TestUpload_TooLarge(t *testing.T) {
	e := newEnv(t, CatalogConfig{MaxUploadSize: 10})

	_, err := e.catalog.Upload(context.Background(), "alice", "big.bin", strings.NewReader(strings.Repeat("x", 11)))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, e.blobCount(t))

	rec, err := e.catalog.Upload(context.Background(), "alice", "ok.bin", strings.NewReader(strings.Repeat("x", 10)))
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Size)
}

func TestUpload_LargerThanSniffBuffer(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	content := bytes.Repeat([]byte("0123456789"), 1000)

	rec, err := e.catalog.Upload(context.Background(), "alice", "digits.txt", bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), rec.Size)
	assert.Equal(t, string(content), e.download(t, "alice", rec.ID))
}

func TestUpload_CollisionReject(t *testing.T) {
	e := newEnv(t, CatalogConfig{CollisionPolicy: CollisionReject})
	e.upload(t, "alice", "a.txt", "one")

	_, err := e.catalog.Upload(context.Background(), "alice", "a.txt", strings.NewReader("two"))
	assert.ErrorIs(t, err, ErrDuplicateFilename)
	assert.Equal(t, 1, e.blobCount(t))

	// Same name for a different owner is fine.
	e.upload(t, "bob", "a.txt", "bob's")
}

func TestUpload_CollisionRename(t *testing.T) {
	e := newEnv(t, CatalogConfig{CollisionPolicy: CollisionRename})

	first := e.upload(t, "alice", "notes.txt", "1")
	second := e.upload(t, "alice", "notes.txt", "2")
	third := e.upload(t, "alice", "notes.txt", "3")

	assert.Equal(t, "notes.txt", first.Filename)
	assert.Equal(t, "notes (1).txt", second.Filename)
	assert.Equal(t, "notes (2).txt", third.Filename)
	assert.Equal(t, "2", e.download(t, "alice", second.ID))
}

func TestUpload_CollisionReplace(t *testing.T) {
	e := newEnv(t, CatalogConfig{CollisionPolicy: CollisionReplace})

	first := e.upload(t, "alice", "a.txt", "old")
	_, err := e.catalog.TogglePrivacy(context.Background(), "alice", first.ID)
	require.NoError(t, err)

	second := e.upload(t, "alice", "a.txt", "new content")

	assert.Equal(t, first.ID, second.ID, "record is updated in place")
	assert.NotEqual(t, first.ContentRef, second.ContentRef)
	assert.False(t, second.IsPrivate, "privacy survives a replace")
	assert.Equal(t, "new content", e.download(t, "alice", first.ID))
	assert.Equal(t, 1, e.blobCount(t), "old blob deleted")
}

func TestUpload_BlobFailure(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	e.blobs.failPut.Store(true)

	_, err := e.catalog.Upload(context.Background(), "alice", "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStorageFailure)

	files, err := e.catalog.List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUpload_MetadataFailureDiscardsBlob(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	meta := &faultyMetaStore{MetadataStore: e.meta}
	meta.failCreate.Store(true)
	catalog := NewCatalogService(e.blobs, meta, CatalogConfig{}, nil)

	_, err := catalog.Upload(context.Background(), "alice", "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.Equal(t, 0, e.blobCount(t), "compensating delete removed the blob")
}

func TestUpload_MetadataAndCleanupFailure(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	meta := &faultyMetaStore{MetadataStore: e.meta}
	meta.failCreate.Store(true)
	e.blobs.failDelete.Store(true)
	catalog := NewCatalogService(e.blobs, meta, CatalogConfig{}, nil)

	_, err := catalog.Upload(context.Background(), "alice", "a.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, errInjected)
	assert.Contains(t, err.Error(), "discard blob")
}

func TestUpload_ConcurrentSameName(t *testing.T) {
	const workers = 10

	tests := []struct {
		name        string
		policy      CollisionPolicy
		wantOK      int // exact, or at least 1 when zero
		loserErr    error
		wantRecords int
	}{
		{name: "reject", policy: CollisionReject, wantOK: 1, loserErr: ErrDuplicateFilename, wantRecords: 1},
		// A replace that keeps losing the swap gives up; some other writer won.
		{name: "replace", policy: CollisionReplace, loserErr: ErrStorageFailure, wantRecords: 1},
		{name: "rename", policy: CollisionRename, wantOK: workers, wantRecords: workers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, CatalogConfig{CollisionPolicy: tt.policy})

			var wg sync.WaitGroup
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = e.catalog.Upload(context.Background(), "alice", "race.txt",
						strings.NewReader(fmt.Sprintf("writer %d", i)))
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				require.NotNil(t, tt.loserErr, "unexpected failure: %v", err)
				assert.ErrorIs(t, err, tt.loserErr)
			}
			if tt.wantOK > 0 {
				assert.Equal(t, tt.wantOK, succeeded)
			} else {
				assert.GreaterOrEqual(t, succeeded, 1)
			}

			files, err := e.catalog.List(context.Background(), "alice")
			require.NoError(t, err)
			require.Len(t, files, tt.wantRecords)

			names := make(map[string]struct{}, len(files))
			for _, f := range files {
				names[f.Filename] = struct{}{}
				assert.Contains(t, e.download(t, "alice", f.ID), "writer ")
			}
			assert.Len(t, names, tt.wantRecords, "filenames stay unique")
			assert.Equal(t, tt.wantRecords, e.blobCount(t), "no orphan blobs")
		})
	}
}

func TestRename(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "old.txt", "payload")

	require.NoError(t, e.catalog.Rename(context.Background(), "alice", rec.ID, "new.txt"))

	renamed, err := e.catalog.Get(context.Background(), "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.txt", renamed.Filename)
	assert.NotEqual(t, rec.ContentRef, renamed.ContentRef)
	assert.Equal(t, "payload", e.download(t, "alice", rec.ID))

	exists, err := e.blobs.Exists(context.Background(), rec.ContentRef)
	require.NoError(t, err)
	assert.False(t, exists, "old key freed")
	assert.Equal(t, 1, e.blobCount(t))

	// The old name is free again.
	e.upload(t, "alice", "old.txt", "another")
}

func TestRename_SameNameIsNoop(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")

	require.NoError(t, e.catalog.Rename(context.Background(), "alice", rec.ID, "a.txt"))

	after, err := e.catalog.Get(context.Background(), "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ContentRef, after.ContentRef)
}

func TestRename_Errors(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	a := e.upload(t, "alice", "a.txt", "a")
	e.upload(t, "alice", "b.txt", "b")
	ctx := context.Background()

	assert.ErrorIs(t, e.catalog.Rename(ctx, "alice", a.ID, "b.txt"), ErrDuplicateFilename)
	assert.ErrorIs(t, e.catalog.Rename(ctx, "alice", a.ID, "../x"), ErrInvalidInput)
	assert.ErrorIs(t, e.catalog.Rename(ctx, "bob", a.ID, "c.txt"), ErrForbidden)
	assert.ErrorIs(t, e.catalog.Rename(ctx, "alice", 9999, "c.txt"), ErrNotFound)
	assert.Equal(t, 2, e.blobCount(t))
}

func TestRename_MetadataFailureRollsBack(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "payload")

	meta := &faultyMetaStore{MetadataStore: e.meta}
	meta.failRename.Store(true)
	catalog := NewCatalogService(e.blobs, meta, CatalogConfig{}, nil)

	err := catalog.Rename(context.Background(), "alice", rec.ID, "b.txt")
	assert.ErrorIs(t, err, ErrStorageFailure)

	after, err := e.catalog.Get(context.Background(), "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", after.Filename)
	assert.Equal(t, rec.ContentRef, after.ContentRef)
	assert.Equal(t, 1, e.blobCount(t), "copied blob removed")
	assert.Equal(t, "payload", e.download(t, "alice", rec.ID))
}

func TestRename_CopyFailure(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "payload")
	e.blobs.failCopy.Store(true)

	err := e.catalog.Rename(context.Background(), "alice", rec.ID, "b.txt")
	assert.ErrorIs(t, err, ErrStorageFailure)

	after, err := e.catalog.Get(context.Background(), "alice", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", after.Filename)
}

func TestRename_ConcurrentSameTarget(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	a := e.upload(t, "alice", "a.txt", "a")
	b := e.upload(t, "alice", "b.txt", "b")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{a.ID, b.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			errs[i] = e.catalog.Rename(context.Background(), "alice", id, "target.txt")
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, ErrDuplicateFilename)
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, e.blobCount(t), "loser's copy discarded, winner's old blob released")
}

func TestDelete(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")
	ctx := context.Background()

	assert.ErrorIs(t, e.catalog.Delete(ctx, "bob", rec.ID), ErrForbidden)
	require.NoError(t, e.catalog.Delete(ctx, "alice", rec.ID))

	_, err := e.catalog.Get(ctx, "alice", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, e.blobCount(t))

	assert.ErrorIs(t, e.catalog.Delete(ctx, "alice", rec.ID), ErrNotFound)
}

func TestDelete_BlobFailureStillRemovesRecord(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")
	e.blobs.failDelete.Store(true)

	err := e.catalog.Delete(context.Background(), "alice", rec.ID)
	assert.ErrorIs(t, err, ErrStorageFailure)

	_, err = e.catalog.Get(context.Background(), "alice", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound, "record is gone even though the blob stayed")
	assert.Equal(t, 1, e.blobCount(t), "orphan left for gc")
}

func TestTogglePrivacy_Involution(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")
	ctx := context.Background()

	private, err := e.catalog.TogglePrivacy(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.False(t, private)

	private, err = e.catalog.TogglePrivacy(ctx, "alice", rec.ID)
	require.NoError(t, err)
	assert.True(t, private)

	_, err = e.catalog.TogglePrivacy(ctx, "bob", rec.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSearch(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	for _, name := range []string{"Report-2024.pdf", "notes.txt", "annual report.docx", "100%_done.txt"} {
		e.upload(t, "alice", name, name)
	}
	e.upload(t, "bob", "report.txt", "bob")
	ctx := context.Background()

	files, err := e.catalog.Search(ctx, "alice", "REPORT")
	require.NoError(t, err)
	assert.Equal(t, []string{"Report-2024.pdf", "annual report.docx"}, names(files))

	files, err = e.catalog.Search(ctx, "alice", "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_done.txt"}, names(files))

	files, err = e.catalog.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_done.txt", "Report-2024.pdf", "annual report.docx", "notes.txt"}, names(files))

	files, err = e.catalog.Search(ctx, "alice", "missing")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDownload_Ownership(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")

	_, _, err := e.catalog.Download(context.Background(), "bob", rec.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = e.catalog.Download(context.Background(), "alice", 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_MissingBlob(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	rec := e.upload(t, "alice", "a.txt", "x")
	require.NoError(t, e.blobs.MemoryBlobStore.Delete(context.Background(), rec.ContentRef))

	_, _, err := e.catalog.Download(context.Background(), "alice", rec.ID)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.True(t, errors.Is(err, blob.ErrBlobNotFound))
}

func TestCancelledContext(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.catalog.Upload(ctx, "alice", "a.txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestSuffixedName(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{"notes.txt", 0, "notes.txt"},
		{"notes.txt", 1, "notes (1).txt"},
		{"archive.tar.gz", 2, "archive.tar (2).gz"},
		{"Makefile", 3, "Makefile (3)"},
		{".env", 1, ".env (1)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, suffixedName(tt.name, tt.n))
	}
}

func names(files []*metadata.FileRecord) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Filename
	}
	return out
}
