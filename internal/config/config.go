// Package config loads the host configuration from YAML, fills defaults,
// and validates before anything touches the radio.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"joyhost/internal/ble/protocol"
)

// Config holds all application configuration.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Commands CommandsConfig `yaml:"commands"`
	LogLevel string         `yaml:"log_level"`
}

// DeviceConfig holds scan and connection settings. Durations are plain
// milliseconds in YAML.
type DeviceConfig struct {
	Name             string `yaml:"name"`
	ScanTimeoutMs    int    `yaml:"scan_timeout_ms"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"`
	ShutdownGraceMs  int    `yaml:"shutdown_grace_ms"`
	ReconnectMax     int    `yaml:"reconnect_max"` // max reconnect backoff, seconds
	// SubscribeButtonA opts into the legacy Button A pad, which current
	// firmware reuses as Button 3.
	SubscribeButtonA bool `yaml:"subscribe_button_a"`
}

// CommandsConfig holds outbound command dispatch settings.
type CommandsConfig struct {
	RatePerSecond     float64 `yaml:"rate_per_second"` // 0 means unlimited
	Burst             int     `yaml:"burst"`
	RejectionWindowMs int     `yaml:"rejection_window_ms"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "joyhost")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Name:             protocol.AdvertisedName,
			ScanTimeoutMs:    10000,
			ConnectTimeoutMs: 20000,
			ShutdownGraceMs:  2000,
			ReconnectMax:     30,
		},
		Commands: CommandsConfig{
			RatePerSecond:     20,
			Burst:             5,
			RejectionWindowMs: 1000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	if c.Device.ScanTimeoutMs <= 0 {
		return fmt.Errorf("device.scan_timeout_ms must be > 0")
	}

	if c.Device.ConnectTimeoutMs <= 0 {
		return fmt.Errorf("device.connect_timeout_ms must be > 0")
	}

	if c.Device.ShutdownGraceMs <= 0 {
		return fmt.Errorf("device.shutdown_grace_ms must be > 0")
	}

	if c.Device.ReconnectMax <= 0 {
		return fmt.Errorf("device.reconnect_max must be > 0")
	}

	if c.Commands.RatePerSecond < 0 {
		return fmt.Errorf("commands.rate_per_second must be >= 0")
	}

	if c.Commands.Burst < 1 {
		return fmt.Errorf("commands.burst must be >= 1")
	}

	if c.Commands.RejectionWindowMs <= 0 {
		return fmt.Errorf("commands.rejection_window_ms must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ScanTimeout returns the scan timeout as a duration.
func (c *DeviceConfig) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutMs) * time.Millisecond
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *DeviceConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMs) * time.Millisecond
}

// ShutdownGrace returns the shutdown grace period as a duration.
func (c *DeviceConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// RejectionWindow returns the rejection watch window as a duration.
func (c *CommandsConfig) RejectionWindow() time.Duration {
	return time.Duration(c.RejectionWindowMs) * time.Millisecond
}

// WriteDefault writes the default config to the default path if no file
// exists there yet. It returns the written path, or "" if a config was
// already present.
func WriteDefault() (string, error) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", fmt.Errorf("cannot determine config directory")
	}
	path := filepath.Join(dir, "config.yaml")

	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	header := "# joyhost configuration\n# Durations are milliseconds; reconnect_max is seconds.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a config log level string to a slog.Level. Unknown
// values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
