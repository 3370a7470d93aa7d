package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConcurrencyTests verifies that uniqueness and compare-and-swap hold
// under concurrent callers.
func (suite *StoreTestSuite) RunConcurrencyTests(t *testing.T) {
	t.Run("ConcurrentCreateSameName", suite.testConcurrentCreateSameName)
	t.Run("ConcurrentRegisterSameUsername", suite.testConcurrentRegister)
	t.Run("ConcurrentRenameSameExpectedRef", suite.testConcurrentRename)
	t.Run("ConcurrentToggle", suite.testConcurrentToggle)
}

const workers = 8

func (suite *StoreTestSuite) testConcurrentCreateSameName(t *testing.T) {
	store := suite.NewStore(t)

	var wg sync.WaitGroup
	var created, duplicates atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			file := newFile("alice", "race.txt")
			file.ContentRef = blob.Ref(fmt.Sprintf("alice/ref-%d", i))
			err := store.CreateFile(testContext(), file)
			if err == nil {
				created.Add(1)
				return
			}
			if _, ok := metadata.IsAlreadyExists(err); ok {
				duplicates.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(workers-1), duplicates.Load())

	files, err := store.ListFiles(testContext(), "alice", "")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func (suite *StoreTestSuite) testConcurrentRegister(t *testing.T) {
	store := suite.NewStore(t)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.CreateUser(testContext(), &metadata.User{
				Username:     "carol",
				Email:        fmt.Sprintf("carol%d@example.com", i),
				PasswordHash: "x",
				CreatedAt:    now(),
			})
			if err == nil {
				created.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func (suite *StoreTestSuite) testConcurrentRename(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("renamed-%d.txt", i)
			_, err := store.RenameFile(testContext(), file.ID, file.ContentRef, name, blob.Ref("alice/ref-"+name))
			if err == nil {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load(), "exactly one CAS may succeed")
}

func (suite *StoreTestSuite) testConcurrentToggle(t *testing.T) {
	store := suite.NewStore(t)
	file := mustCreateFile(t, store, "alice", "a.txt")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.ToggleFilePrivacy(testContext(), file.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetFile(testContext(), file.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPrivate, "an even number of toggles must restore the original state")
}
