package config

import (
	"testing"
	"time"

	httpadapter "github.com/marmos91/dittobox/pkg/adapter/http"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{ShutdownTimeout: 5 * time.Second},
		Catalog: CatalogConfig{MaxUploadSize: 1024, CollisionPolicy: "Rename"},
		Sharing: SharingConfig{DefaultTTL: time.Hour},
	}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected explicit shutdown timeout preserved, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Catalog.MaxUploadSize != 1024 {
		t.Errorf("Expected explicit upload size preserved, got %d", cfg.Catalog.MaxUploadSize)
	}
	if cfg.Catalog.CollisionPolicy != "rename" {
		t.Errorf("Expected collision policy lowercased, got %q", cfg.Catalog.CollisionPolicy)
	}
	if cfg.Sharing.DefaultTTL != time.Hour {
		t.Errorf("Expected explicit share TTL preserved, got %v", cfg.Sharing.DefaultTTL)
	}
	if cfg.Sharing.MaxTTL != 30*24*time.Hour {
		t.Errorf("Expected default max TTL 30 days, got %v", cfg.Sharing.MaxTTL)
	}
}

func TestApplyDefaults_StoreSections(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Blob.Filesystem["path"] != "/tmp/dittobox-blobs" {
		t.Errorf("Expected default blob path, got %v", cfg.Blob.Filesystem["path"])
	}
	if cfg.Blob.S3 == nil || cfg.Blob.S3["region"] != "us-east-1" {
		t.Errorf("Expected default S3 region, got %v", cfg.Blob.S3)
	}
	if cfg.Metadata.Badger["db_path"] != "/tmp/dittobox-metadata" {
		t.Errorf("Expected default badger path, got %v", cfg.Metadata.Badger["db_path"])
	}
	if cfg.Metadata.Postgres == nil {
		t.Error("Expected postgres section initialized")
	}
}

func TestApplyDefaults_StoreSectionsKeepUserValues(t *testing.T) {
	cfg := &Config{
		Blob: BlobConfig{Filesystem: map[string]any{"path": "/srv/blobs"}},
	}
	ApplyDefaults(cfg)

	if cfg.Blob.Filesystem["path"] != "/srv/blobs" {
		t.Errorf("Expected user blob path preserved, got %v", cfg.Blob.Filesystem["path"])
	}
}

func TestApplyDefaults_Auth(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Auth.BcryptCost != 10 {
		t.Errorf("Expected bcrypt cost 10, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Auth.LoginRate != 1 || cfg.Auth.LoginBurst != 5 {
		t.Errorf("Expected default throttle 1/s burst 5, got %v/%d", cfg.Auth.LoginRate, cfg.Auth.LoginBurst)
	}

	// A configured burst with no rate means throttling is disabled
	disabled := &Config{Auth: AuthConfig{LoginBurst: 3}}
	ApplyDefaults(disabled)
	if disabled.Auth.LoginRate != 0 {
		t.Errorf("Expected throttling left disabled, got rate %v", disabled.Auth.LoginRate)
	}
}

func TestApplyDefaults_GC(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.GC.Interval != time.Hour {
		t.Errorf("Expected gc interval 1h, got %v", cfg.GC.Interval)
	}
	if cfg.GC.GracePeriod != time.Hour {
		t.Errorf("Expected gc grace period 1h, got %v", cfg.GC.GracePeriod)
	}
	if cfg.GC.BatchSize != 1000 {
		t.Errorf("Expected gc batch size 1000, got %d", cfg.GC.BatchSize)
	}
}

func TestApplyDefaults_HTTPAdapter(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	h := cfg.Adapters.HTTP
	if !h.Enabled {
		t.Error("Expected HTTP adapter enabled when unconfigured")
	}
	if h.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", h.Port)
	}
	if h.ReadHeaderTimeout != 10*time.Second {
		t.Errorf("Expected read header timeout 10s, got %v", h.ReadHeaderTimeout)
	}
	if h.ReadTimeout != 0 || h.WriteTimeout != 0 {
		t.Errorf("Expected unbounded transfer timeouts, got %v/%v", h.ReadTimeout, h.WriteTimeout)
	}
	if h.SessionTTL != 24*time.Hour {
		t.Errorf("Expected session TTL 24h, got %v", h.SessionTTL)
	}
}

func TestApplyDefaults_HTTPAdapterExplicitlyDisabled(t *testing.T) {
	cfg := &Config{
		Adapters: AdaptersConfig{HTTP: httpadapter.HTTPConfig{Enabled: false, Port: 9000}},
	}
	ApplyDefaults(cfg)

	if cfg.Adapters.HTTP.Enabled {
		t.Error("Expected explicitly configured adapter to stay disabled")
	}
}
