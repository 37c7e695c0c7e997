package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zenostudy/zeno/internal/domain/adminauth"
)

// RegisterCustomValidators registers zeno-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// key_hash: sha256 (bare or prefixed) or argon2id PHC string.
	if err := v.RegisterValidation("key_hash", validateKeyHash); err != nil {
		return fmt.Errorf("failed to register key_hash validator: %w", err)
	}
	return nil
}

// validateKeyHash accepts any hash format the admin verifier understands.
func validateKeyHash(fl validator.FieldLevel) bool {
	return adminauth.DetectHashType(fl.Field().String()) != "unknown"
}

// Validate validates the Config using struct tags and cross-field rules.
// Rule conditions are compiled separately at engine construction; a bad
// condition still fails boot, just with the compiler's error.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	if err := c.validateRateLimitStore(); err != nil {
		return err
	}

	return nil
}

// validateDurations parses every duration-shaped string field.
func (c *Config) validateDurations() error {
	fields := map[string]string{
		"csrf.token_ttl":              c.CSRF.TokenTTL,
		"rate_limit.cleanup_interval": c.RateLimit.CleanupInterval,
		"admin.rate_window":           c.Admin.RateWindow,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", name, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s: duration must be positive, got %q", name, value)
		}
	}
	return nil
}

// validateRateLimitStore requires an absolute sqlite path when the shared
// store is selected.
func (c *Config) validateRateLimitStore() error {
	if c.RateLimit.Store != "sqlite" {
		return nil
	}
	if c.RateLimit.SQLitePath == "" {
		return errors.New("rate_limit.sqlite_path is required when rate_limit.store is sqlite")
	}
	if !filepath.IsAbs(c.RateLimit.SQLitePath) {
		return fmt.Errorf("rate_limit.sqlite_path must be absolute, got %q", c.RateLimit.SQLitePath)
	}
	return nil
}

// CSRFTokenTTL returns the parsed token TTL. Call after Validate.
func (c *Config) CSRFTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.CSRF.TokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// CleanupInterval returns the parsed memory store cleanup interval.
// Call after Validate.
func (c *Config) CleanupInterval() time.Duration {
	d, err := time.ParseDuration(c.RateLimit.CleanupInterval)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// AdminRateWindow returns the parsed admin rate limit window.
// Call after Validate.
func (c *Config) AdminRateWindow() time.Duration {
	d, err := time.ParseDuration(c.Admin.RateWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// formatValidationErrors converts validator.ValidationErrors to
// user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "key_hash":
		return fmt.Sprintf("%s must be a sha256 digest or argon2id hash", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
