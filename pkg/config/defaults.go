package config

import (
	"strings"
	"time"

	httpadapter "github.com/marmos91/dittobox/pkg/adapter/http"
	"github.com/marmos91/dittobox/pkg/gc"
	"github.com/marmos91/dittobox/pkg/store/blob"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyBlobDefaults(&cfg.Blob)
	applyMetadataDefaults(&cfg.Metadata)
	applyCatalogDefaults(&cfg.Catalog)
	applyAuthDefaults(&cfg.Auth)
	applySharingDefaults(&cfg.Sharing)
	applyGCDefaults(&cfg.GC)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyBlobDefaults sets blob store defaults.
func applyBlobDefaults(cfg *BlobConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	// Initialize maps if nil
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/dittobox-blobs"
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.S3["bucket"]; !ok {
		cfg.S3["bucket"] = "dittobox"
	}
	if _, ok := cfg.S3["max_retries"]; !ok {
		cfg.S3["max_retries"] = 3
	}
}

// applyMetadataDefaults sets metadata store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Postgres == nil {
		cfg.Postgres = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/tmp/dittobox-metadata"
	}
	if _, ok := cfg.Postgres["max_conns"]; !ok {
		cfg.Postgres["max_conns"] = 10
	}
	if _, ok := cfg.Postgres["auto_migrate"]; !ok {
		cfg.Postgres["auto_migrate"] = true
	}
}

// applyCatalogDefaults sets upload and naming defaults.
func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = 1 << 30 // 1GB
	}
	if cfg.MaxFilenameLength == 0 {
		cfg.MaxFilenameLength = blob.DefaultMaxFilenameLength
	}
	if cfg.CollisionPolicy == "" {
		cfg.CollisionPolicy = "reject"
	}
	cfg.CollisionPolicy = strings.ToLower(cfg.CollisionPolicy)
}

// applyAuthDefaults sets registration and login defaults.
func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.MinPasswordLength == 0 {
		cfg.MinPasswordLength = 8
	}
	// LoginRate of 0 disables throttling, so only an unconfigured section
	// (no burst either) receives the default rate.
	if cfg.LoginRate == 0 && cfg.LoginBurst == 0 {
		cfg.LoginRate = 1
	}
	if cfg.LoginBurst == 0 {
		cfg.LoginBurst = 5
	}
	if cfg.LimiterSize == 0 {
		cfg.LimiterSize = 10000
	}
	if cfg.LimiterTTL == 0 {
		cfg.LimiterTTL = 15 * time.Minute
	}
}

// applySharingDefaults sets share link lifetime defaults.
func applySharingDefaults(cfg *SharingConfig) {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.MaxTTL == 0 {
		cfg.MaxTTL = 30 * 24 * time.Hour
	}
}

// applyGCDefaults sets garbage collector defaults.
func applyGCDefaults(cfg *gc.Config) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	// Enable the HTTP adapter when its section was never configured, so a
	// config loaded without a file still has an adapter to serve.
	// Users can explicitly set enabled: false together with a port to disable it.
	if !cfg.HTTP.Enabled && cfg.HTTP.Port == 0 {
		cfg.HTTP.Enabled = true
	}

	applyHTTPDefaults(&cfg.HTTP)
}

// applyHTTPDefaults sets HTTP adapter defaults.
func applyHTTPDefaults(cfg *httpadapter.HTTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	// ReadTimeout and WriteTimeout default to 0 (unbounded transfers)

	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}

	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
//
// The session secret is left empty; InitConfig generates one per install.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Blob: BlobConfig{
			Filesystem: make(map[string]any),
			Memory:     make(map[string]any),
			S3:         make(map[string]any),
		},
		Metadata: MetadataConfig{
			Memory:   make(map[string]any),
			Badger:   make(map[string]any),
			Postgres: make(map[string]any),
		},
		GC: gc.Config{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Adapters: AdaptersConfig{
			HTTP: httpadapter.HTTPConfig{
				Enabled: true, // HTTP adapter enabled by default
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
