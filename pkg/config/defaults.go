package config

import "time"

// Default tunable values.
const (
	// DefaultDebounceWindow is the idle period before a batch is dispatched.
	DefaultDebounceWindow = 50 * time.Millisecond

	// DefaultHealthInterval is the health-check loop interval.
	DefaultHealthInterval = 3 * time.Second

	// DefaultReinitDelay is the delay before reinitializing after the
	// backend reports dropped events.
	DefaultReinitDelay = 1 * time.Second
)

// DefaultIgnoreNames returns the default ignore set: the version-control
// directory, the dependency-manager directory, and OS metadata files.
func DefaultIgnoreNames() []string {
	return []string{".git", "node_modules", ".DS_Store"}
}

// Default returns a configuration with default values.
//
// The returned configuration passes Validate().
func Default() *Config {
	return &Config{
		Watcher: WatcherConfig{
			DebounceWindow: DefaultDebounceWindow,
			HealthInterval: DefaultHealthInterval,
			ReinitDelay:    DefaultReinitDelay,
			IgnoreNames:    DefaultIgnoreNames(),
		},
		Journal: JournalConfig{
			Path: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
