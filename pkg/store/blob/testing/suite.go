// Package testing provides a reusable contract suite for blob.BlobStore
// implementations.
package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
)

// StoreTestSuite tests the BlobStore contract, not implementation details,
// so the same suite runs against memory, filesystem, and S3 backends.
//
// Usage:
//
//	func TestMyBlobStore(t *testing.T) {
//	    suite := &blobtesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) blob.BlobStore {
//	            return mystore.New(t.TempDir())
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) blob.BlobStore
}

// Run executes all tests in the suite. Tests for optional interfaces are
// skipped when the store does not implement them.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("BasicOperations", suite.RunBasicTests)
	t.Run("WriteOperations", suite.RunWriteTests)
	t.Run("Copy", suite.RunCopyTests)
	t.Run("List", suite.RunListTests)
}
