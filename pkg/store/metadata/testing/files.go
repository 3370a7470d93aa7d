package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFileTests executes file record tests.
func (suite *StoreTestSuite) RunFileTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetFile)
	t.Run("DuplicateFilenameSameOwner", suite.testDuplicateFilename)
	t.Run("SameFilenameDifferentOwners", suite.testSameFilenameDifferentOwners)
	t.Run("ListOrderedByFilename", suite.testListOrdered)
	t.Run("ListSearchCaseInsensitive", suite.testListSearch)
	t.Run("ListEmpty", suite.testListEmpty)
	t.Run("TogglePrivacy", suite.testTogglePrivacy)
	t.Run("Delete", suite.testDeleteFile)
	t.Run("DeleteFreesName", suite.testDeleteFreesName)
	t.Run("ListContentRefs", suite.testListContentRefs)
	t.Run("NotFound", suite.testFileNotFound)
}

func (suite *StoreTestSuite) testCreateAndGetFile(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	got, err := store.GetFile(testContext(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.Owner, got.Owner)
	assert.Equal(t, file.Filename, got.Filename)
	assert.Equal(t, file.ContentRef, got.ContentRef)
	assert.Equal(t, file.Size, got.Size)
	assert.Equal(t, file.Checksum, got.Checksum)
	assert.Equal(t, file.ContentType, got.ContentType)
	assert.True(t, got.IsPrivate)
	assert.True(t, file.CreatedAt.Equal(got.CreatedAt))

	byName, err := store.GetFileByName(testContext(), "alice", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, file.ID, byName.ID)
}

func (suite *StoreTestSuite) testDuplicateFilename(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateFile(t, store, "alice", "a.txt")

	err := store.CreateFile(testContext(), newFile("alice", "a.txt"))
	field, ok := metadata.IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, metadata.FieldFilename, field)

	files, err := store.ListFiles(testContext(), "alice", "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func (suite *StoreTestSuite) testSameFilenameDifferentOwners(t *testing.T) {
	store := suite.NewStore(t)
	a := mustCreateFile(t, store, "alice", "a.txt")
	b := mustCreateFile(t, store, "bob", "a.txt")
	assert.NotEqual(t, a.ID, b.ID)
}

func (suite *StoreTestSuite) testListOrdered(t *testing.T) {
	store := suite.NewStore(t)
	for _, name := range []string{"c.txt", "a.txt", "b.txt"} {
		mustCreateFile(t, store, "alice", name)
	}
	mustCreateFile(t, store, "bob", "0.txt")

	files, err := store.ListFiles(testContext(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, filenames(files))
}

func (suite *StoreTestSuite) testListSearch(t *testing.T) {
	store := suite.NewStore(t)
	for _, name := range []string{"Report-2024.pdf", "notes.txt", "old_report.doc", "100%_done.txt"} {
		mustCreateFile(t, store, "alice", name)
	}
	mustCreateFile(t, store, "bob", "report.pdf")

	files, err := store.ListFiles(testContext(), "alice", "REPORT")
	require.NoError(t, err)
	assert.Equal(t, []string{"Report-2024.pdf", "old_report.doc"}, filenames(files))

	// Wildcard characters are matched literally.
	files, err = store.ListFiles(testContext(), "alice", "%_")
	require.NoError(t, err)
	assert.Equal(t, []string{"100%_done.txt"}, filenames(files))

	files, err = store.ListFiles(testContext(), "alice", "zzz")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore(t)

	files, err := store.ListFiles(testContext(), "nobody", "")
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func (suite *StoreTestSuite) testTogglePrivacy(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	toggled, err := store.ToggleFilePrivacy(testContext(), file.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsPrivate)

	toggled, err = store.ToggleFilePrivacy(testContext(), file.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsPrivate)

	got, err := store.GetFile(testContext(), file.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrivate)
}

func (suite *StoreTestSuite) testDeleteFile(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	deleted, err := store.DeleteFile(testContext(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.ContentRef, deleted.ContentRef)

	_, err = store.GetFile(testContext(), file.ID)
	requireCode(t, err, metadata.ErrNotFound)

	_, err = store.DeleteFile(testContext(), file.ID)
	requireCode(t, err, metadata.ErrNotFound)
}

func (suite *StoreTestSuite) testDeleteFreesName(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	_, err := store.DeleteFile(testContext(), file.ID)
	require.NoError(t, err)

	again := mustCreateFile(t, store, "alice", "a.txt")
	assert.NotEqual(t, file.ID, again.ID, "file IDs are never reused")
}

func (suite *StoreTestSuite) testListContentRefs(t *testing.T) {
	store := suite.NewStore(t)
	a := mustCreateFile(t, store, "alice", "a.txt")
	b := mustCreateFile(t, store, "bob", "b.txt")

	refs, err := store.ListContentRefs(testContext())
	require.NoError(t, err)
	assert.ElementsMatch(t, []blob.Ref{a.ContentRef, b.ContentRef}, refs)
}

func (suite *StoreTestSuite) testFileNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetFile(testContext(), 12345)
	requireCode(t, err, metadata.ErrNotFound)

	_, err = store.GetFileByName(testContext(), "alice", "missing")
	requireCode(t, err, metadata.ErrNotFound)

	_, err = store.ToggleFilePrivacy(testContext(), 12345)
	requireCode(t, err, metadata.ErrNotFound)
}
