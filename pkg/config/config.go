package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	httpadapter "github.com/marmos91/dittobox/pkg/adapter/http"
	"github.com/marmos91/dittobox/pkg/gc"
	"github.com/spf13/viper"
)

// Config represents the complete DittoBox configuration.
//
// This structure captures all configurable aspects of the DittoBox server including:
//   - Logging configuration
//   - Server-wide settings
//   - Blob and metadata store selection (store-specific sections)
//   - Catalog, auth, and sharing policies
//   - Garbage collection and metrics
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOBOX_*), including those loaded from .env
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type and factory function.
// The Config struct contains type-specific sections (e.g., blob.filesystem, blob.s3)
// and only the section matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Blob specifies the blob store type and type-specific configuration
	Blob BlobConfig `mapstructure:"blob"`

	// Metadata specifies the metadata store type and type-specific configuration
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Catalog controls uploads and naming
	Catalog CatalogConfig `mapstructure:"catalog"`

	// Auth controls registration and login
	Auth AuthConfig `mapstructure:"auth"`

	// Sharing controls share link lifetimes
	Sharing SharingConfig `mapstructure:"sharing"`

	// GC configures the orphaned blob collector
	GC gc.Config `mapstructure:"gc"`

	// Metrics enables Prometheus collection
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// BlobConfig specifies blob store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type BlobConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// MetadataConfig specifies metadata store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: memory, badger, postgres
	Type string `mapstructure:"type" validate:"required,oneof=memory badger postgres"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Postgres contains PostgreSQL-specific configuration
	// Only used when Type = "postgres"
	Postgres map[string]any `mapstructure:"postgres"`
}

// CatalogConfig controls uploads and filename handling.
type CatalogConfig struct {
	// MaxUploadSize caps a single upload in bytes
	MaxUploadSize int64 `mapstructure:"max_upload_size" validate:"gt=0"`

	// MaxFilenameLength caps filenames in bytes
	MaxFilenameLength int `mapstructure:"max_filename_length" validate:"gt=0,lte=1024"`

	// CollisionPolicy decides what an upload over an existing name does
	// Valid values: reject, rename, replace
	CollisionPolicy string `mapstructure:"collision_policy" validate:"required,oneof=reject rename replace"`
}

// AuthConfig controls registration and login.
type AuthConfig struct {
	// BcryptCost is the bcrypt work factor (4-31)
	BcryptCost int `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`

	// MinPasswordLength is the shortest accepted password in bytes
	MinPasswordLength int `mapstructure:"min_password_length" validate:"min=1,max=72"`

	// LoginRate is the sustained login attempts per second per username.
	// 0 disables throttling.
	LoginRate float64 `mapstructure:"login_rate" validate:"min=0"`

	// LoginBurst is how many attempts may be made back to back
	LoginBurst int `mapstructure:"login_burst" validate:"min=1"`

	// LimiterSize caps the number of usernames tracked by the throttle
	LimiterSize int `mapstructure:"limiter_size" validate:"min=0"`

	// LimiterTTL forgets usernames idle for this long
	LimiterTTL time.Duration `mapstructure:"limiter_ttl" validate:"min=0"`
}

// SharingConfig controls share link lifetimes.
type SharingConfig struct {
	// DefaultTTL applies when a share is requested without a lifetime
	DefaultTTL time.Duration `mapstructure:"default_ttl" validate:"gt=0"`

	// MaxTTL is the longest lifetime a share may be issued with
	MaxTTL time.Duration `mapstructure:"max_ttl" validate:"gt=0"`
}

// MetricsConfig controls Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled registers collectors and serves /metrics on the HTTP adapter
	Enabled bool `mapstructure:"enabled"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// HTTP contains the JSON API configuration.
	// Uses the http.HTTPConfig type directly to avoid duplication.
	HTTP httpadapter.HTTPConfig `mapstructure:"http"`
}

// envFile is the dotenv file read from the working directory before the
// environment is consulted.
const envFile = ".env"

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOBOX_*)
//  2. Configuration file
//  3. Default values
//
// A .env file in the working directory is loaded first; variables already
// set in the process environment win over it.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()

	// Configure viper
	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads path into the process environment. A missing file is
// not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) error {
	// Environment variables use DITTOBOX_ prefix and underscores
	// Example: DITTOBOX_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about, so keys that
	// appear nowhere in the config file are bound explicitly.
	for _, key := range envKeys() {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	// Configure config file search
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittobox/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittobox")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittobox")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
