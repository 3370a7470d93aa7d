package testing

import (
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunShareTests executes share token tests.
func (suite *StoreTestSuite) RunShareTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetToken)
	t.Run("DuplicateHash", suite.testDuplicateTokenHash)
	t.Run("Delete", suite.testDeleteToken)
	t.Run("DeleteExpired", suite.testDeleteExpiredTokens)
	t.Run("SurvivesFileDelete", suite.testTokenSurvivesFileDelete)
}

func newToken(hash string, fileID int64, expiresAt time.Time) *metadata.ShareToken {
	return &metadata.ShareToken{
		TokenHash: hash,
		FileID:    fileID,
		Owner:     "alice",
		Filename:  "a.txt",
		IssuedAt:  now(),
		ExpiresAt: expiresAt,
	}
}

func (suite *StoreTestSuite) testCreateAndGetToken(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")
	expires := now().Add(time.Hour)

	require.NoError(t, store.CreateShareToken(testContext(), newToken("h1", file.ID, expires)))

	got, err := store.GetShareToken(testContext(), "h1")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.FileID)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "a.txt", got.Filename)
	assert.True(t, expires.Equal(got.ExpiresAt))

	_, err = store.GetShareToken(testContext(), "missing")
	requireCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDuplicateTokenHash(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	require.NoError(t, store.CreateShareToken(testContext(), newToken("h1", file.ID, now().Add(time.Hour))))
	err := store.CreateShareToken(testContext(), newToken("h1", file.ID, now().Add(time.Hour)))
	field, ok := metadata.IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, metadata.FieldToken, field)
}

func (suite *StoreTestSuite) testDeleteToken(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")
	require.NoError(t, store.CreateShareToken(testContext(), newToken("h1", file.ID, now().Add(time.Hour))))

	require.NoError(t, store.DeleteShareToken(testContext(), "h1"))
	_, err := store.GetShareToken(testContext(), "h1")
	requireCode(t, err, metadata.ErrNotFound)

	requireCode(t, store.DeleteShareToken(testContext(), "h1"), metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDeleteExpiredTokens(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")
	ref := now()

	require.NoError(t, store.CreateShareToken(testContext(), newToken("past", file.ID, ref.Add(-time.Minute))))
	require.NoError(t, store.CreateShareToken(testContext(), newToken("boundary", file.ID, ref)))
	require.NoError(t, store.CreateShareToken(testContext(), newToken("future", file.ID, ref.Add(time.Hour))))

	removed, err := store.DeleteExpiredShareTokens(testContext(), ref)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.GetShareToken(testContext(), "future")
	require.NoError(t, err)
	_, err = store.GetShareToken(testContext(), "boundary")
	requireCode(t, err, metadata.ErrNotFound)
}

// Tokens are only invalidated by the resolve-time re-check, so deleting a
// file must not cascade to its tokens.
func (suite *StoreTestSuite) testTokenSurvivesFileDelete(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")
	require.NoError(t, store.CreateShareToken(testContext(), newToken("h1", file.ID, now().Add(time.Hour))))

	_, err := store.DeleteFile(testContext(), file.ID)
	require.NoError(t, err)

	got, err := store.GetShareToken(testContext(), "h1")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.FileID)
}
