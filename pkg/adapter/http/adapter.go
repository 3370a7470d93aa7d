// Package http implements the JSON/HTTP adapter: a chi router in front of
// the catalog, share, and auth services, with bearer session tokens for
// user routes and anonymous access to share links.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/marmos91/dittobox/internal/logger"
	"github.com/marmos91/dittobox/pkg/metrics"
	"github.com/marmos91/dittobox/pkg/registry"
)

// HTTPAdapter implements the adapter.Adapter interface for the JSON API.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. In-flight requests drain (up to ShutdownTimeout)
//  4. Remaining connections are closed
//
// Thread safety:
// All methods are safe for concurrent use. Stop is idempotent.
type HTTPAdapter struct {
	config   HTTPConfig
	metrics  metrics.HTTPMetrics
	sessions *sessions
	registry *registry.Registry

	// mu protects server and listener, which are set once Serve starts
	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	shutdownOnce sync.Once
	shutdown     chan struct{}
	stopped      chan struct{}
	stopErr      error
}

// New creates a new HTTPAdapter with the specified configuration.
//
// Parameters:
//   - config: Listener, timeout, and session settings
//   - httpMetrics: Optional metrics collector (nil for no metrics)
//
// Returns a configured but not yet started HTTPAdapter.
//
// Panics if config validation fails.
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	return &HTTPAdapter{
		config:   config,
		metrics:  httpMetrics,
		sessions: newSessions(config.SessionSecret, config.SessionTTL),
		shutdown: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetRegistry injects the shared services. Called once before Serve.
func (a *HTTPAdapter) SetRegistry(reg *registry.Registry) {
	a.registry = reg
	logger.Debug("HTTP adapter registry configured")
}

// Handler builds the router. SetRegistry must have been called.
//
// Routes:
//
//	GET    /healthz
//	GET    /metrics                         (when metrics are enabled)
//	GET    /s/{token}                       anonymous share download
//	POST   /api/v1/auth/register
//	POST   /api/v1/auth/login
//	GET    /api/v1/shares/{token}           anonymous share lookup
//	GET    /api/v1/auth/me                  (session)
//	GET    /api/v1/files?q=                 (session)
//	POST   /api/v1/files                    (session, multipart "file")
//	GET    /api/v1/files/{id}               (session)
//	PATCH  /api/v1/files/{id}               (session)
//	DELETE /api/v1/files/{id}               (session)
//	GET    /api/v1/files/{id}/content       (session)
//	POST   /api/v1/files/{id}/privacy       (session)
//	POST   /api/v1/files/{id}/shares        (session)
//	DELETE /api/v1/shares/{token}           (session)
func (a *HTTPAdapter) Handler() http.Handler {
	if a.registry == nil {
		panic("HTTP adapter: SetRegistry must be called before Handler")
	}

	h := &handler{
		reg:       a.registry,
		sessions:  a.sessions,
		publicURL: a.config.PublicURL,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observe(a.metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorCode(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorCode(w, http.StatusMethodNotAllowed, codeInvalidInput, "method not allowed")
	})

	r.Get("/healthz", h.health)
	if metrics.IsEnabled() {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Get("/s/{token}", h.openShare)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.register)
		r.Post("/auth/login", h.login)
		r.Get("/shares/{token}", h.resolveShare)

		r.Group(func(r chi.Router) {
			r.Use(requireSession(a.sessions))

			r.Get("/auth/me", h.me)

			r.Get("/files", h.listFiles)
			r.Post("/files", h.uploadFile)
			r.Get("/files/{id}", h.getFile)
			r.Patch("/files/{id}", h.renameFile)
			r.Delete("/files/{id}", h.deleteFile)
			r.Get("/files/{id}/content", h.downloadFile)
			r.Post("/files/{id}/privacy", h.togglePrivacy)
			r.Post("/files/{id}/shares", h.issueShare)

			r.Delete("/shares/{token}", h.revokeShare)
		})
	})

	return r
}

// Serve starts the HTTP server and blocks until the context is cancelled,
// Stop is called, or the listener fails.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be created or fails unexpectedly
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.config.ReadHeaderTimeout,
		ReadTimeout:       a.config.ReadTimeout,
		WriteTimeout:      a.config.WriteTimeout,
		IdleTimeout:       a.config.IdleTimeout,
	}

	a.mu.Lock()
	select {
	case <-a.shutdown:
		a.mu.Unlock()
		_ = listener.Close()
		return nil
	default:
	}
	a.server = srv
	a.listener = listener
	a.mu.Unlock()

	logger.Info("HTTP server listening on %s", listener.Addr())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			stopCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
			defer cancel()
			_ = a.Stop(stopCtx)
		case <-a.shutdown:
		}
	}()

	err = srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		// Serve returns as soon as Shutdown starts; wait for the drain.
		<-a.stopped
		return nil
	}
	return fmt.Errorf("HTTP server failed: %w", err)
}

// Stop initiates graceful shutdown and waits for in-flight requests until
// ctx expires, after which remaining connections are closed.
func (a *HTTPAdapter) Stop(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		defer close(a.stopped)

		a.mu.Lock()
		close(a.shutdown)
		srv := a.server
		a.mu.Unlock()

		if srv == nil {
			return
		}

		logger.Debug("HTTP shutdown initiated")
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("HTTP graceful shutdown incomplete, closing connections: %v", err)
			_ = srv.Close()
			a.stopErr = err
		}
	})
	return a.stopErr
}

func (a *HTTPAdapter) Protocol() string {
	return "HTTP"
}

func (a *HTTPAdapter) Port() int {
	return a.config.Port
}

// Addr returns the bound listener address, or nil before Serve starts.
func (a *HTTPAdapter) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}
