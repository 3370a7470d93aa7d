package testing

import (
	"bytes"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes Put tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Put_Empty", suite.testPutEmpty)
	t.Run("Put_Large", suite.testPutLarge)
	t.Run("Put_Overwrite", suite.testPutOverwrite)
	t.Run("Put_FailedStreamLeavesNothing", suite.testPutFailedStream)
	t.Run("Put_IndependentRefs", suite.testPutIndependentRefs)
}

func (suite *StoreTestSuite) testPutEmpty(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "empty.bin")

	mustPut(t, store, ref, []byte{})
	assert.Empty(t, mustGet(t, store, ref))
	assertExists(t, store, ref, true)
}

func (suite *StoreTestSuite) testPutLarge(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "large.bin")
	data := generateTestData(4 * 1024 * 1024)

	mustPut(t, store, ref, data)
	assert.True(t, bytes.Equal(data, mustGet(t, store, ref)))
}

func (suite *StoreTestSuite) testPutOverwrite(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "overwrite.txt")

	mustPut(t, store, ref, []byte("first version"))
	mustPut(t, store, ref, []byte("second"))
	assert.Equal(t, []byte("second"), mustGet(t, store, ref))
}

func (suite *StoreTestSuite) testPutFailedStream(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "partial.bin")

	_, err := store.Put(testContext(), ref, &failingReader{data: []byte("half of the")})
	require.Error(t, err)

	assertExists(t, store, ref, false)
	if lister, ok := store.(blob.Lister); ok {
		infos, err := lister.List(testContext())
		require.NoError(t, err)
		assert.Empty(t, infos, "failed upload must not leave a listed blob")
	}
}

func (suite *StoreTestSuite) testPutIndependentRefs(t *testing.T) {
	store := suite.NewStore(t)
	a := newRef(t, "same.txt")
	b := newRef(t, "same.txt")

	mustPut(t, store, a, []byte("A"))
	mustPut(t, store, b, []byte("B"))

	assert.Equal(t, []byte("A"), mustGet(t, store, a))
	assert.Equal(t, []byte("B"), mustGet(t, store, b))
}
