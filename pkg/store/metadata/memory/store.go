// Package memory implements an in-process metadata store.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittobox/pkg/store/metadata"
)

type fileKey struct {
	owner    string
	filename string
}

// MemoryMetadataStore implements metadata.MetadataStore with maps.
//
// This implementation is designed for:
//   - Testing and development
//   - Single-process deployments that do not need persistence
//
// Characteristics:
//   - Volatile: all state is lost on restart
//   - Serializable: every operation runs under one mutex, so uniqueness
//     checks and compare-and-swap updates are trivially atomic
//   - Copy semantics: callers receive clones and never alias stored records
//
// Thread Safety:
// All operations are protected by mu. Reads take the read lock; every
// mutation takes the write lock for its whole check-then-act sequence.
type MemoryMetadataStore struct {
	mu sync.RWMutex

	nextUserID int64
	nextFileID int64

	users       map[int64]*metadata.User
	byUsername  map[string]int64
	byEmail     map[string]int64
	files       map[int64]*metadata.FileRecord
	byOwnerName map[fileKey]int64
	tokens      map[string]*metadata.ShareToken
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{
		users:       make(map[int64]*metadata.User),
		byUsername:  make(map[string]int64),
		byEmail:     make(map[string]int64),
		files:       make(map[int64]*metadata.FileRecord),
		byOwnerName: make(map[fileKey]int64),
		tokens:      make(map[string]*metadata.ShareToken),
	}
}

// Healthcheck always succeeds unless ctx is done.
func (s *MemoryMetadataStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryMetadataStore) Close() error {
	return nil
}
