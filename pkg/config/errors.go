package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoLogRoots is returned when no session log roots are configured.
	ErrNoLogRoots = errors.New("no log roots configured")

	// ErrNoStorageDir is returned when the storage directory is empty.
	ErrNoStorageDir = errors.New("storage directory must not be empty")

	// ErrInvalidPort is returned when the server port is out of range.
	ErrInvalidPort = errors.New("invalid server port: must be in (0, 65535]")

	// ErrInvalidUpdateInterval is returned when the update interval is <= 0.
	ErrInvalidUpdateInterval = errors.New("invalid update interval: must be > 0")

	// ErrInvalidSnapshotInterval is returned when the snapshot interval is <= 0.
	ErrInvalidSnapshotInterval = errors.New("invalid snapshot interval: must be > 0")

	// ErrInvalidLogLevel is returned when the log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when the log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when the config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
