// Package adapter defines the contract between DittoServer and the front
// ends that expose DittoBox to clients.
package adapter

import (
	"context"

	"github.com/marmos91/dittobox/pkg/registry"
)

// Adapter is a protocol front end (the JSON/HTTP API) run by DittoServer.
//
// All adapters reach the catalog, share, and auth services through one
// registry, so a file uploaded through one front end is immediately visible
// through any other.
//
// Lifecycle:
//  1. New: built from its own configuration section
//  2. SetRegistry: receives the shared stores and services
//  3. Serve: listens and blocks until shutdown
//  4. Stop: drains in-flight requests within the given deadline
type Adapter interface {
	// Serve listens and handles requests until ctx is cancelled or Stop is
	// called. A return before either happens is treated by DittoServer as
	// a failure and brings the other adapters down.
	//
	// Returns:
	//   - nil after a graceful stop
	//   - context.Canceled if cancelled via context
	//   - error if the listener could not be opened or failed
	Serve(ctx context.Context) error

	// SetRegistry is called once by DittoServer.AddAdapter, before Serve.
	SetRegistry(reg *registry.Registry)

	// Stop begins graceful shutdown. It is idempotent, safe to call
	// concurrently with Serve, and returns once in-flight requests are done
	// or ctx expires, whichever comes first.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs ("HTTP"). Constant for its lifetime.
	Protocol() string

	// Port is the configured TCP port. DittoServer rejects two adapters on
	// the same non-zero port.
	Port() int
}
