package config

import "errors"

// Common errors returned by configuration loading and validation.
var (
	// ErrConfigNotFound is returned when the config file does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when the config file cannot be parsed.
	ErrInvalidYAML = errors.New("invalid YAML in config file")

	// ErrInvalidDebounceWindow is returned when the debounce window is not positive.
	ErrInvalidDebounceWindow = errors.New("debounce window must be positive")

	// ErrInvalidHealthInterval is returned when the health interval is not positive.
	ErrInvalidHealthInterval = errors.New("health interval must be positive")

	// ErrInvalidReinitDelay is returned when the reinit delay is not positive.
	ErrInvalidReinitDelay = errors.New("reinit delay must be positive")

	// ErrInvalidLogLevel is returned when the log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")

	// ErrInvalidLogFormat is returned when the log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
