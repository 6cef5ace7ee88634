// Package config loads and validates the gateway configuration.
//
// DESIGN: Configuration comes from one YAML file with ${VAR:-default}
// expansion, so API keys and endpoints can be injected from the environment.
// Providers are named entries; the name is what callers route by.
//
// FILES:
//   - config.go:     Root Config struct, Load(), Validate()
//   - providers.go:  Provider entries, default API bases, API key resolution
//   - monitoring.go: Logging and telemetry settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHTTPTimeout bounds a provider call when http.timeout is unset.
const DefaultHTTPTimeout = 10 * time.Minute

// Config is the root configuration for the inference gateway.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"` // Telemetry and logging
	HTTP       HTTPConfig       `yaml:"http"`       // Provider HTTP client settings
	Providers  ProvidersConfig  `yaml:"providers"`  // LLM provider configurations
}

// HTTPConfig contains provider HTTP client settings.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"` // Whole-call timeout, streams included
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// This allows external systems to redirect log paths without modifying the
// base config files.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("GATEWAY_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}
	if envPath := os.Getenv("GATEWAY_FAILED_REQUEST_LOG"); envPath != "" {
		c.Monitoring.FailedRequestLogPath = envPath
	}
	if level := os.Getenv("GATEWAY_LOG_LEVEL"); level != "" {
		c.Monitoring.LogLevel = level
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Monitoring.LogLevel == "" {
		c.Monitoring.LogLevel = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("invalid http.timeout: %s", c.HTTP.Timeout)
	}

	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	return c.Providers.Validate()
}
