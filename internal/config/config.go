// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for the
// support widget.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.supportwidget/config.toml
//   - ~/.supportwidget/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/supportwidget/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete widget configuration.
type Config struct {
	// Service configuration (remote chat API)
	Service ServiceConfig `toml:"service" json:"service"`

	// Sync configuration (polling cadence)
	Sync SyncConfig `toml:"sync" json:"sync"`

	// Session configuration (expiry, canned texts)
	Session SessionConfig `toml:"session" json:"session"`

	// Storage configuration (persistence backend)
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ServiceConfig contains remote chat service configuration.
type ServiceConfig struct {
	// BaseURL is the root URL of the chat service (no trailing path).
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the per-request timeout in seconds.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the number of retry attempts for transient errors.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// SyncConfig contains message synchronization configuration.
type SyncConfig struct {
	// PollIntervalMs is the fixed polling cadence in milliseconds.
	// The service is designed for short-interval polling; values below
	// 500ms are clamped to protect it.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
}

// SessionConfig contains conversation lifecycle configuration.
type SessionConfig struct {
	// TTLHours is how long a session survives without activity.
	TTLHours int `toml:"ttl_hours" json:"ttl_hours"`
	// WelcomeMessage seeds every fresh conversation.
	WelcomeMessage string `toml:"welcome_message" json:"welcome_message"`
	// FallbackMessage is shown when a send fails.
	FallbackMessage string `toml:"fallback_message" json:"fallback_message"`
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	// Backend selects the key-value store: "file" or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	// Path overrides the storage location (empty = default under
	// ~/.supportwidget).
	Path string `toml:"path" json:"path"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`
	// Pretty switches from JSON output to human-readable console output.
	Pretty bool `toml:"pretty" json:"pretty"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:     "",
			TimeoutSecs: 15,
			MaxRetries:  3,
		},
		Sync: SyncConfig{
			PollIntervalMs: 2000,
		},
		Session: SessionConfig{
			TTLHours:        24,
			WelcomeMessage:  "Hi! How can we help you today?",
			FallbackMessage: "I apologize, but I'm having trouble processing your request right now. Please try again in a moment.",
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the widget configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".supportwidget"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Defaults (with any load error for informational purposes)
	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// finishLoad applies env overrides, defaults, and validation.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# supportwidget configuration file")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Validate service base URL if configured
	if c.Service.BaseURL != "" {
		u, err := url.Parse(c.Service.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, ValidationError{
				Field:   "service.base_url",
				Message: fmt.Sprintf("invalid URL '%s', must be http or https", c.Service.BaseURL),
			})
		}
	}

	// Validate timeout
	if c.Service.TimeoutSecs < 1 || c.Service.TimeoutSecs > 120 {
		errs = append(errs, ValidationError{
			Field:   "service.timeout_secs",
			Message: fmt.Sprintf("timeout_secs must be 1-120, got %d", c.Service.TimeoutSecs),
		})
	}

	// Validate retries
	if c.Service.MaxRetries < 0 || c.Service.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "service.max_retries",
			Message: fmt.Sprintf("max_retries must be 0-10, got %d", c.Service.MaxRetries),
		})
	}

	// Validate poll interval
	if c.Sync.PollIntervalMs > 60000 {
		errs = append(errs, ValidationError{
			Field:   "sync.poll_interval_ms",
			Message: fmt.Sprintf("poll_interval_ms must be at most 60000, got %d", c.Sync.PollIntervalMs),
		})
	}

	// Validate session TTL
	if c.Session.TTLHours < 1 {
		errs = append(errs, ValidationError{
			Field:   "session.ttl_hours",
			Message: fmt.Sprintf("ttl_hours must be at least 1, got %d", c.Session.TTLHours),
		})
	}

	// Validate storage backend
	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite", c.Storage.Backend),
		})
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value configuration
// fields and clamps the poll interval to its floor.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Service.TimeoutSecs == 0 {
		c.Service.TimeoutSecs = defaults.Service.TimeoutSecs
	}
	if c.Service.MaxRetries == 0 {
		c.Service.MaxRetries = defaults.Service.MaxRetries
	}

	if c.Sync.PollIntervalMs == 0 {
		c.Sync.PollIntervalMs = defaults.Sync.PollIntervalMs
	}
	// Floor of 500ms protects the service from aggressive misconfiguration.
	if c.Sync.PollIntervalMs < 500 {
		c.Sync.PollIntervalMs = 500
	}

	if c.Session.TTLHours == 0 {
		c.Session.TTLHours = defaults.Session.TTLHours
	}
	if c.Session.WelcomeMessage == "" {
		c.Session.WelcomeMessage = defaults.Session.WelcomeMessage
	}
	if c.Session.FallbackMessage == "" {
		c.Session.FallbackMessage = defaults.Session.FallbackMessage
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SUPPORTWIDGET_BASE_URL: overrides service.base_url
//   - SUPPORTWIDGET_POLL_INTERVAL_MS: overrides sync.poll_interval_ms
//   - SUPPORTWIDGET_STORAGE_BACKEND: overrides storage.backend
//   - SUPPORTWIDGET_STORAGE_PATH: overrides storage.path
//   - SUPPORTWIDGET_LOG_LEVEL: overrides logging.level
//   - SUPPORTWIDGET_LOG_PRETTY: set to "1" or "true" for console output
func (c *Config) ApplyEnvOverrides() {
	if base := os.Getenv("SUPPORTWIDGET_BASE_URL"); base != "" {
		c.Service.BaseURL = base
	}

	if interval := os.Getenv("SUPPORTWIDGET_POLL_INTERVAL_MS"); interval != "" {
		var ms int
		if _, err := fmt.Sscanf(interval, "%d", &ms); err == nil && ms > 0 {
			c.Sync.PollIntervalMs = ms
		}
	}

	if backend := os.Getenv("SUPPORTWIDGET_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}

	if path := os.Getenv("SUPPORTWIDGET_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}

	if level := os.Getenv("SUPPORTWIDGET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if pretty := os.Getenv("SUPPORTWIDGET_LOG_PRETTY"); pretty != "" {
		c.Logging.Pretty = pretty == "1" || strings.ToLower(pretty) == "true"
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// PollInterval returns the polling cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMs) * time.Millisecond
}

// SessionTTL returns the session expiry window as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// ServiceTimeout returns the per-request timeout as a duration.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSecs) * time.Second
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
