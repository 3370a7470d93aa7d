package testing

import (
	"testing"

	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUserTests executes user account tests.
func (suite *StoreTestSuite) RunUserTests(t *testing.T) {
	t.Run("CreateAndGet", suite.testCreateAndGetUser)
	t.Run("DuplicateUsername", suite.testDuplicateUsername)
	t.Run("DuplicateEmailCaseInsensitive", suite.testDuplicateEmail)
	t.Run("UsernameIsCaseSensitive", suite.testUsernameCaseSensitive)
	t.Run("NotFound", suite.testUserNotFound)
}

func (suite *StoreTestSuite) testCreateAndGetUser(t *testing.T) {
	store := suite.NewStore(t)
	alice := mustCreateUser(t, store, "alice", "alice@example.com")
	bob := mustCreateUser(t, store, "bob", "bob@example.com")
	assert.NotEqual(t, alice.ID, bob.ID)

	got, err := store.GetUserByUsername(testContext(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, alice.PasswordHash, got.PasswordHash)
	assert.True(t, alice.CreatedAt.Equal(got.CreatedAt))

	byID, err := store.GetUserByID(testContext(), bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", byID.Username)
}

func (suite *StoreTestSuite) testDuplicateUsername(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateUser(t, store, "alice", "alice@example.com")

	err := store.CreateUser(testContext(), &metadata.User{Username: "alice", Email: "other@example.com", PasswordHash: "x", CreatedAt: now()})
	field, ok := metadata.IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, metadata.FieldUsername, field)
}

func (suite *StoreTestSuite) testDuplicateEmail(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateUser(t, store, "alice", "alice@example.com")

	err := store.CreateUser(testContext(), &metadata.User{Username: "alice2", Email: "ALICE@example.com", PasswordHash: "x", CreatedAt: now()})
	field, ok := metadata.IsAlreadyExists(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, metadata.FieldEmail, field)

	_, err = store.GetUserByUsername(testContext(), "alice2")
	assert.True(t, metadata.IsNotFound(err), "failed insert must not leave a user behind")
}

func (suite *StoreTestSuite) testUsernameCaseSensitive(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateUser(t, store, "alice", "alice@example.com")
	mustCreateUser(t, store, "Alice", "alice2@example.com")

	_, err := store.GetUserByUsername(testContext(), "ALICE")
	assert.True(t, metadata.IsNotFound(err))
}

func (suite *StoreTestSuite) testUserNotFound(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.GetUserByUsername(testContext(), "ghost")
	requireCode(t, err, metadata.ErrNotFound)

	_, err = store.GetUserByID(testContext(), 9999)
	requireCode(t, err, metadata.ErrNotFound)
}
