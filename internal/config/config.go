// Package config provides configuration types for the zeno security gateway.
package config

import "github.com/spf13/viper"

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Backend configures the hosted auth/data backend the facade talks to.
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`

	// EmailCheck configures the email validation oracle.
	EmailCheck EmailCheckConfig `yaml:"email_check" mapstructure:"email_check"`

	// CSRF configures token issuance.
	CSRF CSRFConfig `yaml:"csrf" mapstructure:"csrf"`

	// RateLimit selects and configures the rate limit store.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Admin configures the admin API surface.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Maintenance seeds the runtime maintenance flag.
	Maintenance MaintenanceConfig `yaml:"maintenance" mapstructure:"maintenance"`

	// Rules are the submission policy rules, evaluated in order.
	// Optional: when empty every submission is allowed.
	Rules []RuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`

	// Trace configures span export.
	Trace TraceConfig `yaml:"trace" mapstructure:"trace"`

	// DevMode enables development features (verbose logging, stdout traces,
	// a default admin key).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080"
	// (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// BackendConfig configures the hosted backend facade.
type BackendConfig struct {
	// URL is the backend base URL (e.g. "https://api.example.com/v1").
	// Optional for commands that never call the backend.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// APIKey is the service key sent with every backend request.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// EmailCheckConfig configures the email validation oracle.
// When APIKey is empty every verdict degrades to format-only; submission is
// never blocked by the oracle being unconfigured.
type EmailCheckConfig struct {
	// APIKey is the Abstract API key.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// BaseURL overrides the API endpoint. Mainly for tests.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
}

// CSRFConfig configures token issuance.
type CSRFConfig struct {
	// TokenTTL is the token lifetime (e.g. "1h"). Defaults to "1h".
	TokenTTL string `yaml:"token_ttl" mapstructure:"token_ttl" validate:"omitempty"`
}

// RateLimitConfig selects the rate limit store.
type RateLimitConfig struct {
	// Store is "memory" (per-process counters) or "sqlite" (shared across
	// processes on one host). Defaults to "memory".
	Store string `yaml:"store" mapstructure:"store" validate:"omitempty,oneof=memory sqlite"`

	// SQLitePath is the database file path. Required when Store is "sqlite".
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// CleanupInterval is how often the memory store prunes expired entries
	// (e.g. "1m"). Defaults to "1m".
	CleanupInterval string `yaml:"cleanup_interval" mapstructure:"cleanup_interval" validate:"omitempty"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	// KeyHashes are the accepted admin key hashes. Each is a bare sha256
	// hex digest, a "sha256:"-prefixed digest, or an argon2id PHC string.
	// Generate with: zeno hash-key
	// Optional: with no hashes the admin API rejects everything.
	KeyHashes []string `yaml:"key_hashes" mapstructure:"key_hashes" validate:"omitempty,dive,key_hash"`

	// RateMax is the per-IP attempt budget for admin endpoints per window.
	// Defaults to 30.
	RateMax int `yaml:"rate_max" mapstructure:"rate_max" validate:"omitempty,min=1"`

	// RateWindow is the admin rate limit window (e.g. "1m"). Defaults to "1m".
	RateWindow string `yaml:"rate_window" mapstructure:"rate_window" validate:"omitempty"`
}

// MaintenanceConfig seeds maintenance mode at boot. The runtime flag can be
// toggled afterwards through the admin API.
type MaintenanceConfig struct {
	// Enabled puts the server into maintenance mode at startup.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// AllowPrefixes are extra path prefixes served during maintenance, in
	// addition to the built-in allow list.
	AllowPrefixes []string `yaml:"allow_prefixes" mapstructure:"allow_prefixes"`
}

// RuleConfig defines a single submission policy rule.
type RuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Operation is a glob matched against the submission operation
	// (login, signup, ...). Empty matches every operation.
	Operation string `yaml:"operation" mapstructure:"operation"`

	// Condition is a CEL expression over the submission context.
	// Available variables: operation, email, email_quality,
	// email_disposable, email_deliverable, fields.
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is "allow" or "deny".
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	// Stdout writes spans to stdout. Defaults to on in dev mode.
	Stdout bool `yaml:"stdout" mapstructure:"stdout"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Bind to localhost only; exposing the server is an explicit choice.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.CSRF.TokenTTL == "" {
		c.CSRF.TokenTTL = "1h"
	}

	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.RateLimit.CleanupInterval == "" {
		c.RateLimit.CleanupInterval = "1m"
	}

	if c.Admin.RateMax == 0 {
		c.Admin.RateMax = 30
	}
	if c.Admin.RateWindow == "" {
		c.Admin.RateWindow = "1m"
	}
}

// SetDevDefaults applies permissive defaults for development mode, applied
// before validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	// SHA256 of "dev-admin-key".
	if len(c.Admin.KeyHashes) == 0 {
		c.Admin.KeyHashes = []string{
			"sha256:df76ff796f70d2c9cb055ea6280553caa27eda26b70e01082c160de75a05a4a9",
		}
	}

	// viper.IsSet distinguishes "not set" from "explicitly false".
	if !viper.IsSet("trace.stdout") {
		c.Trace.Stdout = true
	}
}
