package http

import (
	"fmt"
	"time"
)

// HTTPConfig holds configuration parameters for the JSON/HTTP adapter.
//
// Default values (applied by New if zero):
//   - Port: 8080
//   - ReadHeaderTimeout: 10s
//   - ReadTimeout: 0 (uploads may be long; bounded by catalog.max_upload_size)
//   - WriteTimeout: 0 (downloads may be long)
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - SessionTTL: 24h
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on. 0 selects the default.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// ReadHeaderTimeout bounds reading request headers, which keeps slow
	// clients from pinning connections before a handler runs.
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" validate:"min=0"`

	// ReadTimeout bounds reading the whole request including the body.
	// 0 means no timeout.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing the response. 0 means no timeout.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum time Stop waits for in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// SessionSecret signs session tokens (HMAC-SHA256). Required when the
	// adapter is enabled; at least 32 bytes.
	SessionSecret string `mapstructure:"session_secret"`

	// SessionTTL is the lifetime of a session token issued at login.
	SessionTTL time.Duration `mapstructure:"session_ttl" validate:"min=0"`

	// PublicURL prefixes share links in API responses
	// (e.g. "https://box.example.com"). Empty yields relative links.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
}

// minSecretLength is the shortest accepted SessionSecret in bytes.
const minSecretLength = 32

func (c *HTTPConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = 24 * time.Hour
	}
}

func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if len(c.SessionSecret) < minSecretLength {
		return fmt.Errorf("session_secret must be at least %d bytes", minSecretLength)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SessionTTL %v: must be > 0", c.SessionTTL)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// Validate applies defaults to a copy of c and checks it. Configuration
// loaders call it to reject a bad adapter section before startup.
func (c HTTPConfig) Validate() error {
	c.applyDefaults()
	return c.validate()
}
