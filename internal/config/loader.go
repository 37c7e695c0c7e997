// Package config provides configuration loading for zeno.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for zeno.yaml/.yml in
// standard locations. The search requires an explicit YAML extension so a
// binary named "zeno" in the working directory is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("zeno")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: ZENO_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("ZENO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a zeno config file with an
// explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".zeno"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "zeno"))
		}
	} else {
		paths = append(paths, "/etc/zeno")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for zeno.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "zeno"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: ZENO_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")

	_ = viper.BindEnv("backend.url")
	_ = viper.BindEnv("backend.api_key")

	_ = viper.BindEnv("email_check.api_key")
	_ = viper.BindEnv("email_check.base_url")

	_ = viper.BindEnv("csrf.token_ttl")

	_ = viper.BindEnv("rate_limit.store")
	_ = viper.BindEnv("rate_limit.sqlite_path")
	_ = viper.BindEnv("rate_limit.cleanup_interval")

	// Note: admin.key_hashes and rules are arrays, complex to override via
	// env. Users should use the config file for those.
	_ = viper.BindEnv("admin.rate_max")
	_ = viper.BindEnv("admin.rate_window")

	_ = viper.BindEnv("maintenance.enabled")

	_ = viper.BindEnv("trace.stdout")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated Config.
// Note: callers that override DevMode from CLI flags should use
// LoadConfigRaw, then SetDevDefaults and Validate.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded,
// or empty when running on env vars only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
