// Package blob defines the storage contract for file contents.
//
// A blob store maps opaque refs to immutable byte streams. It knows nothing
// about users, filenames, or privacy; the catalog layer decides which ref
// belongs to which file record. Implementations live in sub-packages:
//
//   - fs: local filesystem with atomic publish
//   - memory: in-process map, for tests and ephemeral deployments
//   - s3: Amazon S3 or any S3 compatible endpoint
package blob

import (
	"context"
	"io"
	"time"
)

// BlobStore is the minimal contract every backend implements.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Refs are unique per
// upload, so concurrent writers never target the same key.
type BlobStore interface {
	// Put streams r into the blob identified by ref and returns the number
	// of bytes written. The blob is durable when Put returns nil. On error no
	// partial blob is visible under ref.
	Put(ctx context.Context, ref Ref, r io.Reader) (int64, error)

	// Get opens the blob for reading. The caller closes the reader.
	// Returns ErrBlobNotFound when nothing is stored under ref.
	Get(ctx context.Context, ref Ref) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, ref Ref) error

	// Exists reports whether a blob is stored under ref.
	Exists(ctx context.Context, ref Ref) (bool, error)

	// Healthcheck verifies the backend is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// Copier is implemented by stores that can duplicate a blob without
// streaming it through the caller (S3 CopyObject, a filesystem hard link).
//
// Rename uses it when available and falls back to Get + Put otherwise.
type Copier interface {
	Copy(ctx context.Context, src, dst Ref) error
}

// BlobInfo describes a stored blob for garbage collection.
type BlobInfo struct {
	Ref     Ref
	Size    int64
	ModTime time.Time
}

// Lister is implemented by stores that can enumerate their blobs.
//
// The garbage collector requires it to find blobs no file record points at.
type Lister interface {
	List(ctx context.Context) ([]BlobInfo, error)
}

// BatchDeleter is implemented by stores that delete many blobs per request
// (S3 DeleteObjects). The garbage collector uses it when available.
type BatchDeleter interface {
	// DeleteBatch removes refs and returns the per-ref failures. The error
	// is reserved for cancellation; individual failures go in the map.
	DeleteBatch(ctx context.Context, refs []Ref) (map[Ref]error, error)
}

// DeleteBlobs removes refs, batching when the store supports it.
func DeleteBlobs(ctx context.Context, store BlobStore, refs []Ref) (map[Ref]error, error) {
	if bd, ok := store.(BatchDeleter); ok {
		return bd.DeleteBatch(ctx, refs)
	}

	failures := make(map[Ref]error)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := store.Delete(ctx, ref); err != nil {
			failures[ref] = err
		}
	}
	return failures, nil
}

// CopyBlob duplicates src into dst using the store's Copier when available.
//
// Returns the size of the copy as reported by Put, or -1 when a server-side
// copy was used and the size is unknown.
func CopyBlob(ctx context.Context, store BlobStore, src, dst Ref) (int64, error) {
	if c, ok := store.(Copier); ok {
		if err := c.Copy(ctx, src, dst); err != nil {
			return 0, err
		}
		return -1, nil
	}

	r, err := store.Get(ctx, src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	return store.Put(ctx, dst, r)
}
