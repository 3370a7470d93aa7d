package service

import (
	"fmt"
	"time"

	"github.com/marmos91/dittobox/pkg/store/blob"
	"golang.org/x/crypto/bcrypt"
)

// CollisionPolicy decides what Upload does when the owner already has a file
// with the same name.
type CollisionPolicy string

const (
	// CollisionReject fails the upload with DuplicateFilename.
	CollisionReject CollisionPolicy = "reject"

	// CollisionRename stores the upload as "name (1).ext", "name (2).ext", ...
	CollisionRename CollisionPolicy = "rename"

	// CollisionReplace swaps the existing record onto the new content.
	CollisionReplace CollisionPolicy = "replace"
)

// ParseCollisionPolicy validates a configured policy name. Empty means reject.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case "", CollisionReject:
		return CollisionReject, nil
	case CollisionRename, CollisionReplace:
		return CollisionPolicy(s), nil
	}
	return "", fmt.Errorf("unknown collision policy %q (want reject, rename, or replace)", s)
}

// CatalogConfig configures the catalog service.
type CatalogConfig struct {
	// MaxUploadSize caps the bytes accepted by one upload. Zero means 1GiB.
	MaxUploadSize int64

	// MaxFilenameLength caps filename length in bytes (default 255).
	MaxFilenameLength int

	// CollisionPolicy applies when an upload reuses an existing name.
	CollisionPolicy CollisionPolicy
}

func (c *CatalogConfig) applyDefaults() {
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 1 << 30
	}
	if c.MaxFilenameLength <= 0 {
		c.MaxFilenameLength = blob.DefaultMaxFilenameLength
	}
	if c.CollisionPolicy == "" {
		c.CollisionPolicy = CollisionReject
	}
}

// SharingConfig configures share link lifetimes.
type SharingConfig struct {
	// DefaultTTL applies when Issue is called with a zero TTL (default 24h).
	DefaultTTL time.Duration

	// MaxTTL is the longest lifetime Issue accepts (default 30 days).
	MaxTTL time.Duration
}

func (c *SharingConfig) applyDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 24 * time.Hour
	}
	if c.MaxTTL <= 0 {
		c.MaxTTL = 30 * 24 * time.Hour
	}
	if c.DefaultTTL > c.MaxTTL {
		c.DefaultTTL = c.MaxTTL
	}
}

// AuthConfig configures registration and login.
type AuthConfig struct {
	// BcryptCost is the bcrypt work factor (default bcrypt.DefaultCost).
	BcryptCost int

	// MinPasswordLength is the shortest accepted password in bytes (default 1).
	MinPasswordLength int

	// LoginRate is the sustained login attempts per second allowed per
	// username. Zero disables throttling.
	LoginRate float64

	// LoginBurst is the number of attempts allowed back to back.
	LoginBurst int

	// LimiterSize caps the number of usernames tracked by the throttle.
	LimiterSize int

	// LimiterTTL forgets usernames idle for this long.
	LimiterTTL time.Duration
}

func (c *AuthConfig) applyDefaults() {
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = 1
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = 5
	}
}
