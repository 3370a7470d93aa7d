package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/marmos91/dittobox/pkg/store/metadata"
	metadatatesting "github.com/marmos91/dittobox/pkg/store/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and returns its DSN.
// Skipped unless TEST_INTEGRATION is set.
func setupTestDB(t *testing.T) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("dittobox_test"),
		postgres.WithUsername("dittobox"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresMetadataStore(t *testing.T) {
	dsn := setupTestDB(t)

	suite := &metadatatesting.StoreTestSuite{
		NewStore: func(t *testing.T) metadata.MetadataStore {
			store, err := NewPostgresMetadataStore(context.Background(), PostgresMetadataStoreConfig{
				DSN:         dsn,
				AutoMigrate: true,
			})
			require.NoError(t, err)
			_, err = store.pool.Exec(context.Background(), `TRUNCATE users, files, share_tokens`)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	suite.Run(t)
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := setupTestDB(t)

	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn))
}

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		dsn     string
		want    string
		wantErr bool
	}{
		{"postgres://u:p@h:5432/db?sslmode=disable", "pgx5://u:p@h:5432/db?sslmode=disable", false},
		{"postgresql://u@h/db", "pgx5://u@h/db", false},
		{"pgx5://u@h/db", "pgx5://u@h/db", false},
		{"host=localhost user=u", "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.dsn), func(t *testing.T) {
			got, err := migrationURL(tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewPostgresMetadataStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresMetadataStore(context.Background(), PostgresMetadataStoreConfig{})
	assert.Error(t, err)
}
