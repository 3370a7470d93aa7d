package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBasicTests executes read, existence, and delete tests.
func (suite *StoreTestSuite) RunBasicTests(t *testing.T) {
	t.Run("Get_NotFound", suite.testGetNotFound)
	t.Run("Get_Success", suite.testGetSuccess)
	t.Run("Exists", suite.testExists)
	t.Run("Delete_RemovesBlob", suite.testDeleteRemovesBlob)
	t.Run("Delete_Idempotent", suite.testDeleteIdempotent)
	t.Run("InvalidRef", suite.testInvalidRef)
	t.Run("CancelledContext", suite.testCancelledContext)
	t.Run("Healthcheck", suite.testHealthcheck)
}

// ============================================================================
// Get Tests
// ============================================================================

func (suite *StoreTestSuite) testGetNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Get(testContext(), newRef(t, "missing.txt"))
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func (suite *StoreTestSuite) testGetSuccess(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "hello.txt")

	mustPut(t, store, ref, []byte("Hello, World!"))
	assert.Equal(t, []byte("Hello, World!"), mustGet(t, store, ref))
}

// ============================================================================
// Exists / Delete Tests
// ============================================================================

func (suite *StoreTestSuite) testExists(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "exists.txt")

	assertExists(t, store, ref, false)
	mustPut(t, store, ref, []byte("x"))
	assertExists(t, store, ref, true)
}

func (suite *StoreTestSuite) testDeleteRemovesBlob(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "delete.txt")

	mustPut(t, store, ref, []byte("bye"))
	require.NoError(t, store.Delete(testContext(), ref))

	assertExists(t, store, ref, false)
	_, err := store.Get(testContext(), ref)
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func (suite *StoreTestSuite) testDeleteIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	ref := newRef(t, "never-written.txt")

	require.NoError(t, store.Delete(testContext(), ref))
	require.NoError(t, store.Delete(testContext(), ref))
}

// ============================================================================
// Validation Tests
// ============================================================================

func (suite *StoreTestSuite) testInvalidRef(t *testing.T) {
	store := suite.NewStore(t)

	for _, ref := range []blob.Ref{"", "/etc/passwd", "tester/../../escape", "tester//x"} {
		_, err := store.Get(testContext(), ref)
		assert.ErrorIs(t, err, blob.ErrInvalidRef, "Get(%q)", ref)

		_, err = store.Put(testContext(), ref, nil)
		assert.ErrorIs(t, err, blob.ErrInvalidRef, "Put(%q)", ref)

		assert.ErrorIs(t, store.Delete(testContext(), ref), blob.ErrInvalidRef, "Delete(%q)", ref)
	}
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	store := suite.NewStore(t)
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	_, err := store.Get(ctx, newRef(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = store.Exists(ctx, newRef(t, "x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testHealthcheck(t *testing.T) {
	store := suite.NewStore(t)
	assert.NoError(t, store.Healthcheck(testContext()))
}
