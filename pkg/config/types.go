// Package config provides configuration management for the cost monitor.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file (YAML)
// 3. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Agents dir: %s\n", cfg.Sources.AgentsDir)
package config

import (
	"time"
)

// Config represents the complete application configuration.
//
// Invariants:
// - At least one session log root must be configured
// - Storage.Dir must be non-empty
// - Server.UpdateInterval and Server.SnapshotInterval must be > 0
// - Server.Port must be in (0, 65535].
type Config struct {
	// Log sources (all read-only, never mutated)
	Sources SourcesConfig `yaml:"sources"`

	// Persistent state location
	Storage StorageConfig `yaml:"storage"`

	// Transport boundary settings
	Server ServerConfig `yaml:"server"`

	// Per-model pricing overrides
	Pricing PricingConfig `yaml:"pricing"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// SourcesConfig locates the append-only usage logs this monitor consumes.
type SourcesConfig struct {
	// Directory containing per-agent session logs
	// (<agents_dir>/<agent-id>/sessions/*.jsonl)
	AgentsDir string `yaml:"agents_dir"`

	// Directory containing per-job cron run logs (<job-id>.jsonl)
	CronRunsDir string `yaml:"cron_runs_dir"`

	// Path to the cron job definition file ({"jobs":[{id,name}]})
	CronJobsPath string `yaml:"cron_jobs_path"`

	// Path to the agent configuration carrying model display aliases
	AliasConfigPath string `yaml:"alias_config_path"`
}

// StorageConfig contains persistent state settings.
type StorageConfig struct {
	// Directory holding the accumulation store, snapshot history,
	// and plan usage files. Safe to delete to reset tracking.
	Dir string `yaml:"dir"`
}

// ServerConfig contains transport boundary settings.
type ServerConfig struct {
	// Listen host. Defaults to localhost; set 0.0.0.0 for network access.
	Host string `yaml:"host"`

	// Listen port.
	Port int `yaml:"port"`

	// How often each push connection recomputes and sends the analysis.
	UpdateInterval time.Duration `yaml:"update_interval"`

	// How often a cost snapshot is persisted.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	// WatchLogs enables the fsnotify-based early refresh trigger.
	WatchLogs bool `yaml:"watch_logs"`
}

// ModelRates is a per-model pricing override (USD per million tokens).
type ModelRates struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheWrite float64 `yaml:"cache_write"`
	CacheRead  float64 `yaml:"cache_read"`
}

// PricingConfig contains pricing table overrides.
type PricingConfig struct {
	// Overrides maps a provider-qualified model id to its rates,
	// merged over the built-in table at startup.
	Overrides map[string]ModelRates `yaml:"overrides"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// SessionRoots returns the whitelist of directories session files may be
// read from. Reads outside these roots are refused at open time.
func (c *Config) SessionRoots() []string {
	roots := make([]string, 0, 2)
	if c.Sources.AgentsDir != "" {
		roots = append(roots, c.Sources.AgentsDir)
	}
	if c.Sources.CronRunsDir != "" {
		roots = append(roots, c.Sources.CronRunsDir)
	}
	return roots
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if:
//   - No session log roots are configured
//   - Storage directory is empty
//   - Update or snapshot interval is <= 0
//   - Port is out of range
//   - Log level or format is not recognized
//
// Thread-safety: this method is read-only and thread-safe.
func (c *Config) Validate() error {
	if len(c.SessionRoots()) == 0 {
		return ErrNoLogRoots
	}

	if c.Storage.Dir == "" {
		return ErrNoStorageDir
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Server.UpdateInterval <= 0 {
		return ErrInvalidUpdateInterval
	}
	if c.Server.SnapshotInterval <= 0 {
		return ErrInvalidSnapshotInterval
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
