// Package metadata defines the persistent model of DittoBox: users, file
// records, and share tokens, plus the MetadataStore contract every backend
// implements.
//
// Backends live in sub-packages:
//   - memory: maps under one mutex, for tests and ephemeral deployments
//   - badger: embedded BadgerDB with index keys and transactional retries
//   - postgres: PostgreSQL via pgx with embedded migrations
//
// The store is the serialization point of the system. Uniqueness of
// usernames, emails, and (owner, filename) pairs, and the compare-and-swap on
// ContentRef, are enforced here so that services can stay lock free.
package metadata

import (
	"context"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
)

// MetadataStore persists users, file records, and share tokens.
//
// Error Handling:
// Domain failures are *StoreError values (see errors.go). Infrastructure
// failures are wrapped in an ErrIOError StoreError. Context cancellation is
// returned as ctx.Err().
//
// Thread Safety:
// Implementations must be safe for concurrent use. Every method is atomic
// with respect to every other method.
type MetadataStore interface {
	// ========================================================================
	// Users
	// ========================================================================

	// CreateUser inserts user and assigns user.ID.
	//
	// Returns ErrAlreadyExists with Field "username" or "email" when either
	// is taken. Emails are compared in NormalizeEmail form.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID returns the user with the given ID or ErrNotFound.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername returns the user with the exact username or ErrNotFound.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// ========================================================================
	// File records
	// ========================================================================

	// CreateFile inserts file and assigns file.ID.
	//
	// Returns ErrAlreadyExists with Field "filename" when the owner already
	// has a record with that filename.
	CreateFile(ctx context.Context, file *FileRecord) error

	// GetFile returns the record with the given ID or ErrNotFound.
	GetFile(ctx context.Context, id int64) (*FileRecord, error)

	// GetFileByName returns the owner's record named filename or ErrNotFound.
	GetFileByName(ctx context.Context, owner, filename string) (*FileRecord, error)

	// ListFiles returns the owner's records whose filename contains query
	// (case-insensitive; empty matches all), ordered by filename ascending.
	ListFiles(ctx context.Context, owner, query string) ([]*FileRecord, error)

	// RenameFile sets Filename and ContentRef if the record still points at
	// expectedRef.
	//
	// Returns ErrNotFound, ErrConflict when ContentRef moved on, or
	// ErrAlreadyExists (Field "filename") when the owner has another record
	// named newName.
	RenameFile(ctx context.Context, id int64, expectedRef blob.Ref, newName string, newRef blob.Ref) (*FileRecord, error)

	// ReplaceFileContent swaps the content fields if the record still points
	// at expectedRef. Returns ErrNotFound or ErrConflict.
	ReplaceFileContent(ctx context.Context, id int64, expectedRef blob.Ref, content FileContent) (*FileRecord, error)

	// ToggleFilePrivacy flips IsPrivate atomically and returns the new record.
	ToggleFilePrivacy(ctx context.Context, id int64) (*FileRecord, error)

	// DeleteFile removes the record and returns it as it was.
	DeleteFile(ctx context.Context, id int64) (*FileRecord, error)

	// ListContentRefs returns the ContentRef of every live record.
	ListContentRefs(ctx context.Context) ([]blob.Ref, error)

	// ========================================================================
	// Share tokens
	// ========================================================================

	// CreateShareToken persists token. Returns ErrAlreadyExists (Field
	// "token") on a hash collision.
	CreateShareToken(ctx context.Context, token *ShareToken) error

	// GetShareToken returns the token with the given hash or ErrNotFound.
	GetShareToken(ctx context.Context, tokenHash string) (*ShareToken, error)

	// DeleteShareToken removes the token. Returns ErrNotFound if absent.
	DeleteShareToken(ctx context.Context, tokenHash string) error

	// DeleteExpiredShareTokens removes tokens with ExpiresAt <= now and
	// returns how many were removed.
	DeleteExpiredShareTokens(ctx context.Context, now time.Time) (int, error)

	// ========================================================================
	// Lifecycle
	// ========================================================================

	// Healthcheck verifies the backend is operational.
	Healthcheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
