// Package framework boots a complete DittoBox server for end-to-end tests.
package framework

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/config"
	"github.com/marmos91/dittobox/pkg/registry"
	"github.com/marmos91/dittobox/pkg/server"
)

// StoreType selects the backend combination a test server runs on.
type StoreType string

const (
	// StoreTypeMemory keeps blobs and metadata in memory.
	StoreTypeMemory StoreType = "memory"

	// StoreTypeFilesystem stores blobs on disk and metadata in BadgerDB.
	StoreTypeFilesystem StoreType = "filesystem"
)

// AllStoreTypes lists the combinations every scenario runs against.
var AllStoreTypes = []StoreType{StoreTypeMemory, StoreTypeFilesystem}

// TestServerConfig holds configuration for the test server.
// This is distinct from pkg/config.ServerConfig (application-level server settings).
type TestServerConfig struct {
	Port            int
	Store           StoreType
	LogLevel        string
	CollisionPolicy string
	StartupTimeout  time.Duration
}

// TestServer wraps a DittoBox server for testing.
type TestServer struct {
	t        testing.TB
	config   TestServerConfig
	cfg      *config.Config
	registry *registry.Registry
	cancel   context.CancelFunc
	done     chan error
	mu       sync.Mutex
	started  bool
}

// NewTestServer creates a new test server instance. Call Start to run it.
func NewTestServer(t testing.TB, cfg TestServerConfig) *TestServer {
	t.Helper()

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = findFreePort(t)
	}
	if cfg.Store == "" {
		cfg.Store = StoreTypeMemory
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "ERROR" // Keep tests quiet by default
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}

	return &TestServer{t: t, config: cfg}
}

// buildConfig derives a complete DittoBox configuration from the test settings.
func (ts *TestServer) buildConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = ts.config.LogLevel
	cfg.Metrics.Enabled = false
	cfg.Auth.BcryptCost = 4
	cfg.Auth.MinPasswordLength = 8
	cfg.Auth.LoginRate = 0
	cfg.GC.Enabled = false
	cfg.Adapters.HTTP.Port = ts.config.Port
	cfg.Adapters.HTTP.SessionSecret = "e2e-session-secret-0123456789abcdef"
	cfg.Adapters.HTTP.ShutdownTimeout = 5 * time.Second
	if ts.config.CollisionPolicy != "" {
		cfg.Catalog.CollisionPolicy = ts.config.CollisionPolicy
	}

	switch ts.config.Store {
	case StoreTypeFilesystem:
		dir := ts.t.TempDir()
		cfg.Blob.Type = "filesystem"
		cfg.Blob.Filesystem["path"] = filepath.Join(dir, "blobs")
		cfg.Metadata.Type = "badger"
		cfg.Metadata.Badger["db_path"] = filepath.Join(dir, "metadata")
	default:
		cfg.Blob.Type = "memory"
		cfg.Metadata.Type = "memory"
	}
	return cfg
}

// Start builds the registry and adapters the way the dittobox binary does
// and serves in the background until Stop.
func (ts *TestServer) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return fmt.Errorf("server already started")
	}

	ts.t.Helper()

	cfg := ts.buildConfig()
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid test configuration: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())

	m := config.InitializeMetrics(cfg)
	reg, err := config.InitializeRegistry(ctx, cfg, m)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to initialize registry: %w", err)
	}

	srv := server.New(reg, 5*time.Second)
	adapters, err := config.CreateAdapters(cfg, m.HTTP)
	if err != nil {
		cancel()
		_ = reg.Close()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			cancel()
			_ = reg.Close()
			return err
		}
	}

	ts.cfg = cfg
	ts.registry = reg
	ts.cancel = cancel
	ts.done = make(chan error, 1)

	go func() {
		ts.done <- srv.Serve(ctx)
	}()

	ts.t.Logf("Waiting for server to start on port %d...", ts.config.Port)
	if err := ts.waitForServer(); err != nil {
		cancel()
		<-ts.done
		return fmt.Errorf("server failed to start: %w", err)
	}

	ts.started = true
	ts.t.Logf("Server started on port %d (%s stores)", ts.config.Port, ts.config.Store)
	return nil
}

// Stop stops the test server and waits for it to release its stores.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ts.cancel()

	select {
	case err := <-ts.done:
		if err != nil && !errors.Is(err, context.Canceled) {
			ts.t.Logf("Server stopped with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		ts.t.Logf("Server stop timeout")
	}

	ts.started = false
}

// BaseURL returns the root URL of the HTTP adapter.
func (ts *TestServer) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", ts.config.Port)
}

// Registry returns the registry the server runs on.
func (ts *TestServer) Registry() *registry.Registry {
	return ts.registry
}

// Config returns the configuration the server was started with.
func (ts *TestServer) Config() *config.Config {
	return ts.cfg
}

// waitForServer waits for the server to be ready by attempting to connect.
func (ts *TestServer) waitForServer() error {
	deadline := time.Now().Add(ts.config.StartupTimeout)
	addr := fmt.Sprintf("127.0.0.1:%d", ts.config.Port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for server to start")
}

// findFreePort finds an available port.
func findFreePort(t testing.TB) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}
