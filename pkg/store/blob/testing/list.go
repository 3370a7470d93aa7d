package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListTests executes Lister tests.
func (suite *StoreTestSuite) RunListTests(t *testing.T) {
	t.Run("List_Empty", suite.testListEmpty)
	t.Run("List_ReturnsPublishedBlobs", suite.testListBlobs)
	t.Run("DeleteBlobs", suite.testDeleteBlobs)
}

func (suite *StoreTestSuite) testListEmpty(t *testing.T) {
	store := suite.NewStore(t)
	lister, ok := store.(blob.Lister)
	if !ok {
		t.Skip("store does not implement blob.Lister")
	}

	infos, err := lister.List(testContext())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func (suite *StoreTestSuite) testListBlobs(t *testing.T) {
	store := suite.NewStore(t)
	lister, ok := store.(blob.Lister)
	if !ok {
		t.Skip("store does not implement blob.Lister")
	}

	a, b := newRef(t, "one.txt"), newRef(t, "two.txt")
	mustPut(t, store, a, []byte("1"))
	mustPut(t, store, b, []byte("22"))
	require.NoError(t, store.Delete(testContext(), a))

	infos, err := lister.List(testContext())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, b, infos[0].Ref)
	assert.Equal(t, int64(2), infos[0].Size)
	assert.False(t, infos[0].ModTime.IsZero())
}

func (suite *StoreTestSuite) testDeleteBlobs(t *testing.T) {
	store := suite.NewStore(t)

	refs := []blob.Ref{newRef(t, "a"), newRef(t, "b"), newRef(t, "c")}
	for _, ref := range refs[:2] {
		mustPut(t, store, ref, []byte("x"))
	}

	// refs[2] was never written; deleting it is not a failure.
	failures, err := blob.DeleteBlobs(testContext(), store, refs)
	require.NoError(t, err)
	assert.Empty(t, failures)

	for _, ref := range refs {
		assertExists(t, store, ref, false)
	}
}
