package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

blob:
  type: "memory"

metadata:
  type: "memory"

adapters:
  http:
    enabled: true
    session_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Adapters.HTTP.Port != 8080 {
		t.Errorf("Expected default HTTP port 8080, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Catalog.CollisionPolicy != "reject" {
		t.Errorf("Expected default collision policy 'reject', got %q", cfg.Catalog.CollisionPolicy)
	}
	if cfg.Sharing.DefaultTTL != 24*time.Hour {
		t.Errorf("Expected default share TTL 24h, got %v", cfg.Sharing.DefaultTTL)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Setenv("DITTOBOX_ADAPTERS_HTTP_SESSION_SECRET", testSecret)
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Blob.Type != "filesystem" {
		t.Errorf("Expected default blob type 'filesystem', got %q", cfg.Blob.Type)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata type 'badger', got %q", cfg.Metadata.Type)
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled without a config file")
	}
	if cfg.Adapters.HTTP.SessionSecret != testSecret {
		t.Error("Expected session secret from environment")
	}
}

func TestLoad_NoConfigFileWithoutSecret(t *testing.T) {
	t.Setenv("DITTOBOX_ADAPTERS_HTTP_SESSION_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Fatal("Expected validation error without a session secret")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[blob]
type = "memory"

[metadata]
type = "memory"

[adapters.http]
enabled = true
port = 9090
session_secret = "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Adapters.HTTP.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Adapters.HTTP.Port)
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
sharing:
  default_ttl: 2h
  max_ttl: 48h
gc:
  interval: 15m
adapters:
  http:
    session_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Sharing.DefaultTTL != 2*time.Hour || cfg.Sharing.MaxTTL != 48*time.Hour {
		t.Errorf("Unexpected sharing TTLs: %+v", cfg.Sharing)
	}
	if cfg.GC.Interval != 15*time.Minute {
		t.Errorf("Expected gc interval 15m, got %v", cfg.GC.Interval)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	// Verify all defaults are set
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Blob.Type != "filesystem" {
		t.Errorf("Expected default blob type 'filesystem', got %q", cfg.Blob.Type)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata type 'badger', got %q", cfg.Metadata.Type)
	}
	if !cfg.GC.Enabled {
		t.Error("Expected garbage collection enabled by default")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics enabled by default")
	}
	if !cfg.Adapters.HTTP.Enabled {
		t.Error("Expected HTTP adapter enabled by default")
	}
	if cfg.Adapters.HTTP.SessionSecret != "" {
		t.Error("Expected no session secret in the default config")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	dir := GetConfigDir()

	if filepath.Base(dir) != "dittobox" {
		t.Errorf("Expected directory name 'dittobox', got %q", filepath.Base(dir))
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Fatal("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOBOX_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOBOX_ADAPTERS_HTTP_PORT", "5080")
	t.Setenv("DITTOBOX_ADAPTERS_HTTP_SESSION_SECRET", testSecret)
	t.Setenv("DITTOBOX_METADATA_POSTGRES_DSN", "postgres://u:p@db:5432/box")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

adapters:
  http:
    enabled: true
    port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Adapters.HTTP.Port != 5080 {
		t.Errorf("Expected port 5080 from env var, got %d", cfg.Adapters.HTTP.Port)
	}
	if cfg.Metadata.Postgres["dsn"] != "postgres://u:p@db:5432/box" {
		t.Errorf("Expected postgres dsn from env var, got %v", cfg.Metadata.Postgres["dsn"])
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DITTOBOX_TEST_DOTENV=from-file\n"), 0600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("DITTOBOX_TEST_DOTENV") })

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv failed: %v", err)
	}
	if got := os.Getenv("DITTOBOX_TEST_DOTENV"); got != "from-file" {
		t.Errorf("Expected value from .env, got %q", got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected missing .env to be ignored, got %v", err)
	}
}

func TestEnvKeys(t *testing.T) {
	keys := make(map[string]bool)
	for _, k := range envKeys() {
		keys[k] = true
	}

	for _, want := range []string{
		"logging.level",
		"adapters.http.session_secret",
		"gc.grace_period",
		"catalog.collision_policy",
		"blob.s3.bucket",
		"metadata.badger.db_path",
	} {
		if !keys[want] {
			t.Errorf("Expected env key %q", want)
		}
	}
	if keys["blob.filesystem"] {
		t.Error("Map sections must not be bound as scalar keys")
	}
}
