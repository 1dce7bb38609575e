package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by the loader.
const (
	envDebounceWindow = "REACTIVEFS_DEBOUNCE_WINDOW"
	envHealthInterval = "REACTIVEFS_HEALTH_INTERVAL"
	envReinitDelay    = "REACTIVEFS_REINIT_DELAY"
	envIgnoreNames    = "REACTIVEFS_IGNORE_NAMES"
	envJournalPath    = "REACTIVEFS_JOURNAL_PATH"
	envLogLevel       = "REACTIVEFS_LOG_LEVEL"
	envLogFormat      = "REACTIVEFS_LOG_FORMAT"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, searches for a config file in:
// 1. ./reactivefs.yaml (current directory)
// 2. ~/.config/reactivefs/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	configPath := l.configPath
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicitly requested file must load; a discovered one
			// falls back to defaults.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = mergeConfigs(cfg, fileCfg)
		}
	}

	applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// findConfigFile searches for a config file in standard locations.
func (l *loader) findConfigFile() string {
	if _, err := os.Stat("reactivefs.yaml"); err == nil {
		return "reactivefs.yaml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	candidate := filepath.Join(home, ".config", "reactivefs", "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}

	return ""
}

// mergeConfigs overlays non-zero values from overlay onto base.
func mergeConfigs(base, overlay *Config) *Config {
	merged := *base

	if overlay.Watcher.DebounceWindow > 0 {
		merged.Watcher.DebounceWindow = overlay.Watcher.DebounceWindow
	}
	if overlay.Watcher.HealthInterval > 0 {
		merged.Watcher.HealthInterval = overlay.Watcher.HealthInterval
	}
	if overlay.Watcher.ReinitDelay > 0 {
		merged.Watcher.ReinitDelay = overlay.Watcher.ReinitDelay
	}
	if overlay.Watcher.IgnoreNames != nil {
		merged.Watcher.IgnoreNames = overlay.Watcher.IgnoreNames
	}
	if overlay.Journal.Path != "" {
		merged.Journal.Path = overlay.Journal.Path
	}
	if overlay.Logging.Level != "" {
		merged.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.Format != "" {
		merged.Logging.Format = overlay.Logging.Format
	}

	return &merged
}

// applyEnvVars overrides configuration values from the environment.
func applyEnvVars(cfg *Config) {
	if v := os.Getenv(envDebounceWindow); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watcher.DebounceWindow = d
		}
	}
	if v := os.Getenv(envHealthInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watcher.HealthInterval = d
		}
	}
	if v := os.Getenv(envReinitDelay); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Watcher.ReinitDelay = d
		}
	}
	if v := os.Getenv(envIgnoreNames); v != "" {
		names := strings.Split(v, ",")
		for i, name := range names {
			names[i] = strings.TrimSpace(name)
		}
		cfg.Watcher.IgnoreNames = names
	}
	if v := os.Getenv(envJournalPath); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}
