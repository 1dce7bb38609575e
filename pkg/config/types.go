// Package config provides configuration management for reactivefs.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.NewLoader("").Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Debounce window: %v\n", cfg.Watcher.DebounceWindow)
package config

import (
	"time"
)

// Config represents the complete reactivefs configuration.
//
// Invariants:
// - DebounceWindow must be > 0
// - HealthInterval must be > 0
// - ReinitDelay must be > 0
// - Logging level and format must be recognized values.
type Config struct {
	// Watcher tunables
	Watcher WatcherConfig `yaml:"watcher"`

	// Recovery journal settings
	Journal JournalConfig `yaml:"journal"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// WatcherConfig contains project watcher tunables.
type WatcherConfig struct {
	// Idle period after the last event before a batch is dispatched
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// How often the health-check loop probes a quiet watcher
	HealthInterval time.Duration `yaml:"health_interval"`

	// Delay before reinitializing after the backend reports dropped events
	ReinitDelay time.Duration `yaml:"reinit_delay"`

	// Directory and file names excluded from the backend subscription
	IgnoreNames []string `yaml:"ignore_names"`
}

// JournalConfig contains recovery journal settings.
type JournalConfig struct {
	// Path to the BoltDB journal file. Empty disables journaling.
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - Non-positive debounce window, health interval, or reinit delay
//   - Unrecognized log level or format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Watcher.DebounceWindow <= 0 {
		return ErrInvalidDebounceWindow
	}
	if c.Watcher.HealthInterval <= 0 {
		return ErrInvalidHealthInterval
	}
	if c.Watcher.ReinitDelay <= 0 {
		return ErrInvalidReinitDelay
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}
