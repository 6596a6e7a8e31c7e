package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default returns a configuration with sensible default values.
//
// Defaults follow the on-disk layout of an OpenClaw (Clawdbot)
// installation and a localhost-only dashboard.
func Default() *Config {
	return &Config{
		Sources: SourcesConfig{
			AgentsDir:       defaultOpenClawPath("agents"),
			CronRunsDir:     defaultOpenClawPath("cron", "runs"),
			CronJobsPath:    defaultOpenClawPath("cron", "jobs.json"),
			AliasConfigPath: defaultOpenClawPath("openclaw.json"),
		},
		Storage: StorageConfig{
			Dir: defaultStorageDir(),
		},
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             3939,
			UpdateInterval:   30 * time.Second,
			SnapshotInterval: time.Hour,
			WatchLogs:        true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}

// defaultOpenClawPath returns a path under ~/.openclaw.
func defaultOpenClawPath(parts ...string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(append([]string{".openclaw"}, parts...)...)
	}

	return filepath.Join(append([]string{homeDir, ".openclaw"}, parts...)...)
}

// defaultStorageDir returns the directory for accumulated tracking state.
//
// Lives in the home directory so it survives application updates.
// Returns: ~/.clawdbot-cost-monitor.
func defaultStorageDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.clawdbot-cost-monitor"
	}

	return filepath.Join(homeDir, ".clawdbot-cost-monitor")
}

// defaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/clawdbot-cost-monitor/config.yaml.
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}

	return filepath.Join(homeDir, ".config", "clawdbot-cost-monitor", "config.yaml")
}
