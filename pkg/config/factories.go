package config

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/store/blob"
	blobfs "github.com/marmos91/dittobox/pkg/store/blob/fs"
	blobmemory "github.com/marmos91/dittobox/pkg/store/blob/memory"
	blobs3 "github.com/marmos91/dittobox/pkg/store/blob/s3"
	"github.com/marmos91/dittobox/pkg/store/metadata"
	"github.com/marmos91/dittobox/pkg/store/metadata/badger"
	metamemory "github.com/marmos91/dittobox/pkg/store/metadata/memory"
	"github.com/marmos91/dittobox/pkg/store/metadata/postgres"
	"github.com/mitchellh/mapstructure"
)

// decodeOptions decodes a type-specific store section into out.
//
// Values may arrive as strings when they come from environment variables,
// so decoding is weakly typed and understands duration strings ("10s").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// CreateBlobStore creates a blob store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/store/blob/fs (local filesystem storage)
//   - "memory": Uses pkg/store/blob/memory (development and tests)
//   - "s3": Uses pkg/store/blob/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Blob store configuration
//   - s3Metrics: Optional S3 metrics (nil disables them)
//
// Returns:
//   - blob.BlobStore: Initialized blob store
//   - error: Configuration or initialization error
func CreateBlobStore(ctx context.Context, cfg *BlobConfig, s3Metrics blobs3.S3Metrics) (blob.BlobStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemBlobStore(ctx, cfg.Filesystem)
	case "memory":
		logger.Warn("Using in-memory blob store: content is lost on restart")
		return blobmemory.NewMemoryBlobStore(), nil
	case "s3":
		return createS3BlobStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// createFilesystemBlobStore creates a filesystem-based blob store.
func createFilesystemBlobStore(ctx context.Context, options map[string]any) (blob.BlobStore, error) {
	// Define the configuration struct for filesystem blob store
	type FilesystemBlobStoreConfig struct {
		Path     string `mapstructure:"path"`
		DirPerm  uint32 `mapstructure:"dir_perm"`
		FilePerm uint32 `mapstructure:"file_perm"`
	}

	// Decode the options into the config struct
	var storeCfg FilesystemBlobStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem blob store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem blob store: path is required")
	}

	// Create the store
	store, err := blobfs.NewFSBlobStore(ctx, blobfs.FSBlobStoreConfig{
		BasePath: storeCfg.Path,
		DirPerm:  os.FileMode(storeCfg.DirPerm),
		FilePerm: os.FileMode(storeCfg.FilePerm),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem blob store: %w", err)
	}

	logger.Info("Filesystem blob store initialized: path=%s", store.BasePath())
	return store, nil
}

// createS3BlobStore creates an S3-based blob store.
func createS3BlobStore(ctx context.Context, options map[string]any, s3Metrics blobs3.S3Metrics) (blob.BlobStore, error) {
	// Define the configuration struct for S3 blob store
	type S3BlobStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		PartSize        int64  `mapstructure:"part_size"`
		MaxRetries      int    `mapstructure:"max_retries"`
		ForcePathStyle  bool   `mapstructure:"force_path_style"`
	}

	// Decode the options into the config struct
	var storeCfg S3BlobStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 blob store config: %w", err)
	}

	// Validate required fields
	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}

	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	// ========================================================================
	// Step 1: Create S3 Client
	// ========================================================================

	client, err := blobs3.NewS3ClientFromConfig(ctx, blobs3.S3ClientConfig{
		Region:          storeCfg.Region,
		Endpoint:        storeCfg.Endpoint,
		AccessKeyID:     storeCfg.AccessKeyID,
		SecretAccessKey: storeCfg.SecretAccessKey,
		MaxRetries:      storeCfg.MaxRetries,
		ForcePathStyle:  storeCfg.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Blob Store
	// ========================================================================

	store, err := blobs3.NewS3BlobStore(ctx, blobs3.S3BlobStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		PartSize:  storeCfg.PartSize,
		Metrics:   s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// CreateMetadataStore creates a metadata store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": Uses pkg/store/metadata/memory (development and tests)
//   - "badger": Uses pkg/store/metadata/badger (embedded, single node)
//   - "postgres": Uses pkg/store/metadata/postgres (shared database)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Metadata store configuration
//
// Returns:
//   - metadata.MetadataStore: Initialized metadata store
//   - error: Configuration or initialization error
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.MetadataStore, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("Using in-memory metadata store: users, files and shares are lost on restart")
		return metamemory.NewMemoryMetadataStore(), nil
	case "badger":
		return createBadgerMetadataStore(ctx, cfg.Badger)
	case "postgres":
		return createPostgresMetadataStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q", cfg.Type)
	}
}

// createBadgerMetadataStore creates a BadgerDB-backed metadata store.
func createBadgerMetadataStore(ctx context.Context, options map[string]any) (metadata.MetadataStore, error) {
	var storeCfg badger.BadgerMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	store, err := badger.NewBadgerMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}

	logger.Info("BadgerDB metadata store initialized: path=%s", storeCfg.DBPath)
	return store, nil
}

// createPostgresMetadataStore creates a PostgreSQL-backed metadata store.
func createPostgresMetadataStore(ctx context.Context, options map[string]any) (metadata.MetadataStore, error) {
	var storeCfg postgres.PostgresMetadataStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode postgres metadata store config: %w", err)
	}

	if storeCfg.DSN == "" {
		return nil, fmt.Errorf("postgres metadata store: dsn is required")
	}

	store, err := postgres.NewPostgresMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres metadata store: %w", err)
	}

	logger.Info("PostgreSQL metadata store initialized (auto_migrate=%v)", storeCfg.AutoMigrate)
	return store, nil
}
