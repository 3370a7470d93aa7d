package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCopyTests executes Copier tests and the CopyBlob fallback.
func (suite *StoreTestSuite) RunCopyTests(t *testing.T) {
	t.Run("Copier", suite.testCopier)
	t.Run("Copier_MissingSource", suite.testCopierMissingSource)
	t.Run("CopyBlob_SourceSurvivesDelete", suite.testCopyBlobIndependent)
}

func (suite *StoreTestSuite) testCopier(t *testing.T) {
	store := suite.NewStore(t)
	copier, ok := store.(blob.Copier)
	if !ok {
		t.Skip("store does not implement blob.Copier")
	}

	src, dst := newRef(t, "src.txt"), newRef(t, "dst.txt")
	mustPut(t, store, src, []byte("copy me"))

	require.NoError(t, copier.Copy(testContext(), src, dst))
	assert.Equal(t, []byte("copy me"), mustGet(t, store, dst))
	assert.Equal(t, []byte("copy me"), mustGet(t, store, src))
}

func (suite *StoreTestSuite) testCopierMissingSource(t *testing.T) {
	store := suite.NewStore(t)
	copier, ok := store.(blob.Copier)
	if !ok {
		t.Skip("store does not implement blob.Copier")
	}

	err := copier.Copy(testContext(), newRef(t, "nope"), newRef(t, "dst"))
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func (suite *StoreTestSuite) testCopyBlobIndependent(t *testing.T) {
	store := suite.NewStore(t)
	src, dst := newRef(t, "a.txt"), newRef(t, "b.txt")
	mustPut(t, store, src, []byte("payload"))

	_, err := blob.CopyBlob(testContext(), store, src, dst)
	require.NoError(t, err)
	require.NoError(t, store.Delete(testContext(), src))

	assertExists(t, store, src, false)
	assert.Equal(t, []byte("payload"), mustGet(t, store, dst))
}
