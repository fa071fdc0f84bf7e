// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ipcbridge/lib/codec"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-release testing.
	Staging Environment = "staging"
	// Production is for shipped builds.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Name is announced to the other side of every connection. Empty
	// means the binary picks one from its mode.
	Name string `yaml:"name"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Transport configures the connection between contexts.
	Transport TransportConfig `yaml:"transport"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Runtime holds the host's socket. Created with mode 0700.
	Runtime string `yaml:"runtime"`
}

// TransportConfig configures the connection between contexts.
type TransportConfig struct {
	// Network is "unix" or "tcp".
	Network string `yaml:"network"`

	// Address is the socket path (unix) or host:port (tcp) the host
	// listens on and clients dial.
	Address string `yaml:"address"`

	// RequestTimeout bounds how long a request waits for its response.
	// "0s" disables the bound.
	RequestTimeout string `yaml:"request_timeout"`

	// HandshakeTimeout bounds the hello exchange on a new connection.
	HandshakeTimeout string `yaml:"handshake_timeout"`

	// Compression is none, lz4, or zstd.
	Compression string `yaml:"compression"`

	// CompressionThreshold is the smallest payload, in bytes, that is
	// compressed.
	CompressionThreshold int `yaml:"compression_threshold"`

	// RequireSameUser refuses unix connections from other users. In an
	// override section that sets transport, this is always applied.
	RequireSameUser bool `yaml:"require_same_user"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text, json, or auto. Auto picks text when the log
	// output is a terminal and json otherwise.
	Format string `yaml:"format"`
}

// Default returns the default configuration, used as the base before
// the config file is loaded.
func Default() *Config {
	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Runtime: "${XDG_RUNTIME_DIR:-/tmp}/ipcbridge",
		},
		Transport: TransportConfig{
			Network:              "unix",
			Address:              "${IPCBRIDGE_RUNTIME_DIR}/host.sock",
			RequestTimeout:       "30s",
			HandshakeTimeout:     "10s",
			Compression:          "lz4",
			CompressionThreshold: 4096,
			RequireSameUser:      false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the IPCBRIDGE_CONFIG environment
// variable. If it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("IPCBRIDGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("IPCBRIDGE_CONFIG environment variable not set; " +
			"set it to the path of your ipcbridge.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// JSON is valid YAML once comments and trailing commas are gone.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: refuse other users, machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Transport: &TransportConfig{
					RequireSameUser: c.Transport.Network == "unix",
				},
				Logging: &LoggingConfig{
					Format: "json",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Runtime != "" {
			c.Paths.Runtime = overrides.Paths.Runtime
		}
	}

	if overrides.Transport != nil {
		if overrides.Transport.Network != "" {
			c.Transport.Network = overrides.Transport.Network
		}
		if overrides.Transport.Address != "" {
			c.Transport.Address = overrides.Transport.Address
		}
		if overrides.Transport.RequestTimeout != "" {
			c.Transport.RequestTimeout = overrides.Transport.RequestTimeout
		}
		if overrides.Transport.HandshakeTimeout != "" {
			c.Transport.HandshakeTimeout = overrides.Transport.HandshakeTimeout
		}
		if overrides.Transport.Compression != "" {
			c.Transport.Compression = overrides.Transport.Compression
		}
		if overrides.Transport.CompressionThreshold != 0 {
			c.Transport.CompressionThreshold = overrides.Transport.CompressionThreshold
		}
		// RequireSameUser is a bool, so we always apply it from overrides.
		c.Transport.RequireSameUser = overrides.Transport.RequireSameUser
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Runtime = expandVars(c.Paths.Runtime, vars)
	vars["IPCBRIDGE_RUNTIME_DIR"] = c.Paths.Runtime // Update for dependent paths.

	c.Transport.Address = expandVars(c.Transport.Address, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// RequestTimeout returns the parsed transport.request_timeout.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return parseDuration("transport.request_timeout", c.Transport.RequestTimeout)
}

// HandshakeTimeout returns the parsed transport.handshake_timeout.
func (c *Config) HandshakeTimeout() (time.Duration, error) {
	return parseDuration("transport.handshake_timeout", c.Transport.HandshakeTimeout)
}

// Compression returns the parsed transport.compression.
func (c *Config) Compression() (codec.Compression, error) {
	compression, err := codec.ParseCompression(c.Transport.Compression)
	if err != nil {
		return 0, fmt.Errorf("transport.compression: %w", err)
	}
	return compression, nil
}

// LogLevel returns the parsed logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return duration, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Transport.Network {
	case "unix", "tcp":
	default:
		errs = append(errs, fmt.Errorf("transport.network must be one of: [unix tcp]"))
	}
	if c.Transport.Address == "" {
		errs = append(errs, fmt.Errorf("transport.address is required"))
	}
	if c.Transport.RequireSameUser && c.Transport.Network != "unix" {
		errs = append(errs, fmt.Errorf("transport.require_same_user needs a unix network"))
	}
	if _, err := c.RequestTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.HandshakeTimeout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Compression(); err != nil {
		errs = append(errs, err)
	}
	if c.Transport.CompressionThreshold < 0 {
		errs = append(errs, fmt.Errorf("transport.compression_threshold must not be negative"))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	logFormats := []string{"text", "json", "auto"}
	if !contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the runtime directory if the transport needs it.
func (c *Config) EnsurePaths() error {
	if c.Transport.Network != "unix" || c.Paths.Runtime == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.Runtime, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Runtime, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
