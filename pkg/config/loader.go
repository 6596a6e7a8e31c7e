package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
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
// 1. ./config.yaml (current directory)
// 2. ~/.config/clawdbot-cost-monitor/config.yaml.
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
			// An explicitly specified file must load; a discovered one
			// may be absent or broken, in which case defaults stand.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

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
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		defaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Sources.AgentsDir != "" {
		result.Sources.AgentsDir = override.Sources.AgentsDir
	}
	if override.Sources.CronRunsDir != "" {
		result.Sources.CronRunsDir = override.Sources.CronRunsDir
	}
	if override.Sources.CronJobsPath != "" {
		result.Sources.CronJobsPath = override.Sources.CronJobsPath
	}
	if override.Sources.AliasConfigPath != "" {
		result.Sources.AliasConfigPath = override.Sources.AliasConfigPath
	}

	if override.Storage.Dir != "" {
		result.Storage.Dir = override.Storage.Dir
	}

	if override.Server.Host != "" {
		result.Server.Host = override.Server.Host
	}
	if override.Server.Port > 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.UpdateInterval > 0 {
		result.Server.UpdateInterval = override.Server.UpdateInterval
	}
	if override.Server.SnapshotInterval > 0 {
		result.Server.SnapshotInterval = override.Server.SnapshotInterval
	}
	// WatchLogs is a bool, so the override value always wins.
	result.Server.WatchLogs = override.Server.WatchLogs

	if len(override.Pricing.Overrides) > 0 {
		result.Pricing.Overrides = override.Pricing.Overrides
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - OPENCLAW_DIR: Base directory replacing ~/.openclaw for all sources
//   - COSTWATCH_STORAGE_DIR: Storage directory
//   - COSTWATCH_LOG_LEVEL: Log level
//   - HOST: Listen host
//   - PORT: Listen port
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if base := os.Getenv("OPENCLAW_DIR"); base != "" {
		result.Sources.AgentsDir = filepath.Join(base, "agents")
		result.Sources.CronRunsDir = filepath.Join(base, "cron", "runs")
		result.Sources.CronJobsPath = filepath.Join(base, "cron", "jobs.json")
		result.Sources.AliasConfigPath = filepath.Join(base, "openclaw.json")
	}

	if dir := os.Getenv("COSTWATCH_STORAGE_DIR"); dir != "" {
		result.Storage.Dir = dir
	}

	if level := os.Getenv("COSTWATCH_LOG_LEVEL"); level != "" {
		result.Logging.Level = strings.ToLower(level)
	}

	if host := os.Getenv("HOST"); host != "" {
		result.Server.Host = host
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			result.Server.Port = p
		}
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
