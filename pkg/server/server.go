// Package server runs DittoBox protocol adapters against a shared registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/adapter"
	"github.com/marmos91/dittobox/pkg/registry"
)

// ErrAlreadyServed is returned by Serve on every call after the first.
var ErrAlreadyServed = errors.New("server: Serve has already been called")

// DefaultStopTimeout bounds adapter shutdown when no timeout is configured.
const DefaultStopTimeout = 30 * time.Second

// BackgroundTask is a component with its own goroutine that runs alongside
// the adapters, such as the orphaned blob collector.
type BackgroundTask interface {
	Start()
	Stop(ctx context.Context) error
}

// DittoServer manages the lifecycle of the protocol adapters that expose a
// single DittoBox registry.
//
// Lifecycle:
//  1. Creation: New() with the registry
//  2. Registration: AddAdapter() for each protocol, AddTask() for background work
//  3. Startup: Serve() starts tasks, then all adapters concurrently
//  4. Shutdown: Context cancellation stops adapters in reverse order, then
//     tasks, then closes the registry
//
// Thread safety:
// DittoServer is safe for concurrent use. Serve() runs at most once per
// server instance.
//
// Example usage:
//
//	srv := server.New(reg, cfg.Server.ShutdownTimeout)
//	srv.AddAdapter(httpadapter.New(httpConfig, httpMetrics))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    log.Fatal(err)
//	}
type DittoServer struct {
	registry    *registry.Registry
	stopTimeout time.Duration

	// mu protects adapters, tasks and served
	mu       sync.RWMutex
	adapters []adapter.Adapter
	tasks    []BackgroundTask
	served   bool
}

// New creates a new DittoServer around reg.
//
// Parameters:
//   - reg: Stores and services shared by every adapter (required)
//   - stopTimeout: Time allowed for adapters and tasks to stop (0 = DefaultStopTimeout)
//
// Panics if reg is nil (indicates programmer error).
func New(reg *registry.Registry, stopTimeout time.Duration) *DittoServer {
	if reg == nil {
		panic("registry cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	return &DittoServer{
		registry:    reg,
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter with the server.
//
// The shared registry is injected into the adapter. Duplicate protocols and
// port conflicts are rejected.
//
// Parameters:
//   - a: The protocol adapter to register (must not be nil)
//
// Returns:
//   - error if the adapter conflicts with an existing adapter or Serve has
//     already been called
func (s *DittoServer) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add %s adapter after Serve() has been called", a.Protocol())
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	// Inject shared registry
	a.SetRegistry(s.registry)

	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// AddTask registers a background task started before the adapters and
// stopped after them.
func (s *DittoServer) AddTask(t BackgroundTask) error {
	if t == nil {
		panic("task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		return fmt.Errorf("cannot add task after Serve() has been called")
	}
	s.tasks = append(s.tasks, t)
	return nil
}

// Serve starts all registered tasks and adapters and blocks until the context
// is cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails:
//   - All adapters receive Stop() calls in reverse registration order
//   - Serve() waits for every adapter goroutine to return
//   - Background tasks are stopped
//   - The registry is closed
//
// Parameters:
//   - ctx: Controls server lifecycle. Cancellation triggers graceful shutdown.
//
// Returns:
//   - context.Canceled (or the context's error) after a signal-driven shutdown
//   - error wrapping the adapter failure if an adapter failed
//   - ErrAlreadyServed on a second call
func (s *DittoServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		return ErrAlreadyServed
	}
	s.served = true
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	tasks := make([]BackgroundTask, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	err := s.serve(ctx, adapters, tasks)

	if closeErr := s.registry.Close(); closeErr != nil {
		logger.Error("Failed to close registry: %v", closeErr)
		if err == nil {
			err = closeErr
		}
	}
	return err
}

// serve runs the adapters until shutdown. The caller closes the registry.
func (s *DittoServer) serve(ctx context.Context, adapters []adapter.Adapter, tasks []BackgroundTask) error {
	if len(adapters) == 0 {
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting DittoBox server with %d adapter(s)", len(adapters))

	for _, t := range tasks {
		t.Start()
	}

	// Buffered to prevent goroutine leaks if multiple adapters fail simultaneously
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown
				if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
					return
				}
				logger.Debug("%s adapter stopped gracefully", protocol)
				return
			}
			logger.Info("%s adapter stopped", protocol)
		}(adp)
	}

	// Wait for either context cancellation or adapter error
	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	s.stopTasks(tasks)

	logger.Info("DittoBox server stopped gracefully")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error for better error reporting.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters signals every adapter to stop in reverse registration order.
//
// All Stop() calls share one timeout so a misbehaving adapter cannot block
// shutdown indefinitely. Errors are logged and the remaining adapters are
// still stopped.
func (s *DittoServer) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		}
	}
}

// stopTasks stops background tasks in reverse registration order.
func (s *DittoServer) stopTasks(tasks []BackgroundTask) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	for i := len(tasks) - 1; i >= 0; i-- {
		if err := tasks[i].Stop(ctx); err != nil {
			logger.Error("Error stopping background task: %v", err)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters.
//
// The returned slice is a copy and safe to iterate over without holding locks.
func (s *DittoServer) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}

// Registry returns the registry shared by all adapters.
func (s *DittoServer) Registry() *registry.Registry {
	return s.registry
}
