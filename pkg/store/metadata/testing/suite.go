// Package testing provides a reusable contract suite for
// metadata.MetadataStore implementations.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite tests the MetadataStore contract against any backend.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &metadatatesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) metadata.MetadataStore {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test. Implementations
	// register their own cleanup with t.Cleanup.
	NewStore func(t *testing.T) metadata.MetadataStore
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("Users", suite.RunUserTests)
	t.Run("Files", suite.RunFileTests)
	t.Run("CompareAndSwap", suite.RunCASTests)
	t.Run("ShareTokens", suite.RunShareTests)
	t.Run("Concurrency", suite.RunConcurrencyTests)
}

func testContext() context.Context {
	return context.Background()
}

// now returns a timestamp with the precision every backend can round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func mustCreateUser(t *testing.T, store metadata.MetadataStore, username, email string) *metadata.User {
	t.Helper()
	user := &metadata.User{
		Username:     username,
		Email:        email,
		PasswordHash: "$2a$10$hash-for-" + username,
		CreatedAt:    now(),
	}
	require.NoError(t, store.CreateUser(testContext(), user))
	require.NotZero(t, user.ID)
	return user
}

func newFile(owner, filename string) *metadata.FileRecord {
	ts := now()
	return &metadata.FileRecord{
		Owner:       owner,
		Filename:    filename,
		ContentRef:  blob.Ref(owner + "/ref-" + filename),
		Size:        42,
		Checksum:    "abc123",
		ContentType: "text/plain; charset=utf-8",
		IsPrivate:   true,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

func mustCreateFile(t *testing.T, store metadata.MetadataStore, owner, filename string) *metadata.FileRecord {
	t.Helper()
	file := newFile(owner, filename)
	require.NoError(t, store.CreateFile(testContext(), file))
	require.NotZero(t, file.ID)
	return file
}

func requireCode(t *testing.T, err error, code metadata.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	got, ok := metadata.ErrorCodeOf(err)
	require.True(t, ok, "expected *StoreError, got %T: %v", err, err)
	require.Equal(t, code, got, "unexpected error code: %v", err)
}

func filenames(files []*metadata.FileRecord) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return names
}
