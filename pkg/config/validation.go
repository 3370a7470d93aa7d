package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittobox/pkg/service"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate at least one adapter is enabled
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if err := cfg.Adapters.HTTP.Validate(); err != nil {
		return fmt.Errorf("adapters.http: %w", err)
	}

	if _, err := service.ParseCollisionPolicy(cfg.Catalog.CollisionPolicy); err != nil {
		return fmt.Errorf("catalog.collision_policy: %w", err)
	}

	if cfg.Sharing.DefaultTTL > cfg.Sharing.MaxTTL {
		return fmt.Errorf("sharing: default_ttl (%v) exceeds max_ttl (%v)",
			cfg.Sharing.DefaultTTL, cfg.Sharing.MaxTTL)
	}

	if cfg.Auth.LoginRate > 0 && cfg.Auth.LimiterSize == 0 {
		return fmt.Errorf("auth: limiter_size must be positive when login_rate is set")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
