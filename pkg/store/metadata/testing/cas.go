package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCASTests executes compare-and-swap tests for rename and replace.
func (suite *StoreTestSuite) RunCASTests(t *testing.T) {
	t.Run("Rename", suite.testRename)
	t.Run("RenameFreesOldName", suite.testRenameFreesOldName)
	t.Run("RenameStaleRef", suite.testRenameStaleRef)
	t.Run("RenameOntoTakenName", suite.testRenameOntoTakenName)
	t.Run("RenameOtherOwnerNameIsFree", suite.testRenameOtherOwnerName)
	t.Run("RenameNotFound", suite.testRenameNotFound)
	t.Run("ReplaceContent", suite.testReplaceContent)
	t.Run("ReplaceStaleRef", suite.testReplaceStaleRef)
}

func (suite *StoreTestSuite) testRename(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	renamed, err := store.RenameFile(testContext(), file.ID, file.ContentRef, "b.txt", "alice/ref-b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", renamed.Filename)
	assert.Equal(t, blob.Ref("alice/ref-b.txt"), renamed.ContentRef)
	assert.Equal(t, file.Size, renamed.Size)
	assert.Equal(t, file.IsPrivate, renamed.IsPrivate)

	got, err := store.GetFileByName(testContext(), "alice", "b.txt")
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)
}

func (suite *StoreTestSuite) testRenameFreesOldName(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	_, err := store.RenameFile(testContext(), file.ID, file.ContentRef, "b.txt", "alice/ref-b.txt")
	require.NoError(t, err)

	_, err = store.GetFileByName(testContext(), "alice", "a.txt")
	requireCode(t, err, metadata.ErrNotFound)
	mustCreateFile(t, store, "alice", "a.txt")
}

func (suite *StoreTestSuite) testRenameStaleRef(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	_, err := store.RenameFile(testContext(), file.ID, "alice/stale", "b.txt", "alice/ref-b.txt")
	requireCode(t, err, metadata.ErrConflict)

	got, err := store.GetFile(testContext(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
	assert.Equal(t, file.ContentRef, got.ContentRef)
}

func (suite *StoreTestSuite) testRenameOntoTakenName(t *testing.T) {
	store := suite.NewStore(t)
	a := mustCreateFile(t, store, "alice", "a.txt")
	mustCreateFile(t, store, "alice", "b.txt")

	_, err := store.RenameFile(testContext(), a.ID, a.ContentRef, "b.txt", "alice/ref-b2.txt")
	field, ok := metadata.IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, metadata.FieldFilename, field)

	got, err := store.GetFile(testContext(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)
}

func (suite *StoreTestSuite) testRenameOtherOwnerName(t *testing.T) {
	store := suite.NewStore(t)
	a := mustCreateFile(t, store, "alice", "a.txt")
	mustCreateFile(t, store, "bob", "b.txt")

	_, err := store.RenameFile(testContext(), a.ID, a.ContentRef, "b.txt", "alice/ref-b.txt")
	require.NoError(t, err)
}

func (suite *StoreTestSuite) testRenameNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.RenameFile(testContext(), 777, "x/y", "b.txt", "x/z")
	requireCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testReplaceContent(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	replaced, err := store.ReplaceFileContent(testContext(), file.ID, file.ContentRef, metadata.FileContent{
		ContentRef:  "alice/ref-v2",
		Size:        7,
		Checksum:    "def456",
		ContentType: "application/octet-stream",
	})
	require.NoError(t, err)
	assert.Equal(t, blob.Ref("alice/ref-v2"), replaced.ContentRef)
	assert.Equal(t, int64(7), replaced.Size)
	assert.Equal(t, "def456", replaced.Checksum)
	assert.Equal(t, "application/octet-stream", replaced.ContentType)
	assert.Equal(t, "a.txt", replaced.Filename)
}

func (suite *StoreTestSuite) testReplaceStaleRef(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	_, err := store.ReplaceFileContent(testContext(), file.ID, "alice/stale", metadata.FileContent{ContentRef: "alice/v2"})
	requireCode(t, err, metadata.ErrConflict)

	_, err = store.ReplaceFileContent(testContext(), 999, "alice/stale", metadata.FileContent{ContentRef: "alice/v2"})
	requireCode(t, err, metadata.ErrNotFound)
}
