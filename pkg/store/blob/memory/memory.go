// Package memory implements an in-process blob store.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
)

type entry struct {
	data    []byte
	modTime time.Time
}

// MemoryBlobStore implements blob.BlobStore using a map.
//
// It is meant for tests and ephemeral deployments: contents are lost when the
// process exits and every blob is held in RAM.
//
// Implemented Interfaces:
//   - blob.BlobStore
//   - blob.Copier
//   - blob.Lister
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on write and
// readers receive an independent view, so callers never share buffers with
// the store.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[blob.Ref]entry

	// now is the clock used for ModTime; replaced in tests.
	now func() time.Time
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs: make(map[blob.Ref]entry),
		now:   time.Now,
	}
}

// SetClock overrides the time source used for BlobInfo.ModTime.
func (s *MemoryBlobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put reads r completely before publishing the blob, so a failed stream
// never leaves a partial entry behind.
func (s *MemoryBlobStore) Put(ctx context.Context, ref blob.Ref, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return 0, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read blob %s: %w", ref, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[ref] = entry{data: data, modTime: s.now()}
	return int64(len(data)), nil
}

func (s *MemoryBlobStore) Get(ctx context.Context, ref blob.Ref) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", ref, blob.ErrBlobNotFound)
	}

	// Entries are never mutated in place, so the slice can be shared.
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (s *MemoryBlobStore) Delete(ctx context.Context, ref blob.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, ref)
	return nil
}

func (s *MemoryBlobStore) Exists(ctx context.Context, ref blob.Ref) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := blob.ValidateRef(ref); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.blobs[ref]
	return ok, nil
}

// Copy shares the underlying bytes between src and dst.
func (s *MemoryBlobStore) Copy(ctx context.Context, src, dst blob.Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateRef(src); err != nil {
		return err
	}
	if err := blob.ValidateRef(dst); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.blobs[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, blob.ErrBlobNotFound)
	}
	s.blobs[dst] = entry{data: e.data, modTime: s.now()}
	return nil
}

// List returns every stored blob ordered by ref.
func (s *MemoryBlobStore) List(ctx context.Context) ([]blob.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	infos := make([]blob.BlobInfo, 0, len(s.blobs))
	for ref, e := range s.blobs {
		infos = append(infos, blob.BlobInfo{Ref: ref, Size: int64(len(e.data)), ModTime: e.modTime})
	}
	s.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Ref < infos[j].Ref })
	return infos, nil
}

// Len returns the number of stored blobs.
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryBlobStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryBlobStore) Close() error {
	return nil
}
