package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	ctx := context.Background()

	id, err := e.auth.Register(ctx, "alice", " Alice@Example.com ", "s3cret")
	require.NoError(t, err)
	assert.Positive(t, id)

	user, err := e.auth.User(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
}

func TestRegister_Duplicates(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	ctx := context.Background()
	_, err := e.auth.Register(ctx, "alice", "alice@example.com", "pw")
	require.NoError(t, err)

	_, err = e.auth.Register(ctx, "alice", "other@example.com", "pw")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = e.auth.Register(ctx, "alice2", "ALICE@example.com", "pw")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegister_InvalidInput(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	ctx := context.Background()

	tests := []struct {
		name, username, email, password string
	}{
		{"empty username", "", "a@example.com", "pw"},
		{"short username", "ab", "a@example.com", "pw"},
		{"slash in username", "a/b/c", "a@example.com", "pw"},
		{"long username", strings.Repeat("a", 65), "a@example.com", "pw"},
		{"empty email", "alice", "", "pw"},
		{"bad email", "alice", "not-an-email", "pw"},
		{"empty password", "alice", "a@example.com", ""},
		{"password over bcrypt limit", "alice", "a@example.com", strings.Repeat("p", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.auth.Register(ctx, tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegister_MinPasswordLength(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	auth, err := NewAuthService(e.meta, AuthConfig{BcryptCost: bcrypt.MinCost, MinPasswordLength: 8}, nil)
	require.NoError(t, err)

	_, err = auth.Register(context.Background(), "alice", "a@example.com", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = auth.Register(context.Background(), "alice", "a@example.com", "long enough")
	assert.NoError(t, err)
}

func TestRegister_Concurrent(t *testing.T) {
	e := newEnv(t, CatalogConfig{})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.auth.Register(context.Background(), "alice", "alice@example.com", "pw")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestAuthenticate(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	ctx := context.Background()
	e.register(t, "alice")

	user, err := e.auth.Authenticate(ctx, "alice", "secret-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = e.auth.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.auth.Authenticate(ctx, "nobody", "secret-alice")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.auth.Authenticate(ctx, "Alice", "secret-alice")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "usernames are case-sensitive")
}

func TestAuthenticate_RateLimited(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	auth, err := NewAuthService(e.meta, AuthConfig{
		BcryptCost: bcrypt.MinCost,
		LoginRate:  0.001,
		LoginBurst: 3,
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	e.register(t, "alice")

	for i := 0; i < 3; i++ {
		_, err := auth.Authenticate(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err = auth.Authenticate(ctx, "alice", "secret-alice")
	assert.ErrorIs(t, err, ErrRateLimited, "even the right password is throttled")

	_, err = auth.Authenticate(ctx, "bob", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "other usernames unaffected")
}

func TestNewAuthService_BadCost(t *testing.T) {
	e := newEnv(t, CatalogConfig{})
	_, err := NewAuthService(e.meta, AuthConfig{BcryptCost: 99}, nil)
	assert.Error(t, err)
}
