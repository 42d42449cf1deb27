// Package config holds all lifeos configuration: a YAML file layered with
// environment overrides, plus hot reload of the messaging policy section.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	// DataDir holds the state file, heartbeat file, archive DB, and digest.
	DataDir string `yaml:"data_dir"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Messaging MessagingConfig `yaml:"messaging"`
	Goals     GoalsConfig     `yaml:"goals"`
	Digest    DigestConfig    `yaml:"digest"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SchedulerConfig carries the cycle timing knobs. Durations are strings
// ("30s", "5m") parsed at load time.
type SchedulerConfig struct {
	Interval               string `yaml:"interval"`
	CycleTimeout           string `yaml:"cycle_timeout"`
	StepTimeout            string `yaml:"step_timeout"`
	ProviderTimeout        string `yaml:"provider_timeout"`
	HealthTimeout          string `yaml:"health_timeout"`
	BackoffBase            string `yaml:"backoff_base"`
	BackoffCap             string `yaml:"backoff_cap"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
}

// MessagingConfig bounds the outbound alert channel. Hot-reloadable.
type MessagingConfig struct {
	QuietHoursStart string `yaml:"quiet_hours_start"` // "22:00"
	QuietHoursEnd   string `yaml:"quiet_hours_end"`   // "08:00"
	DailyAlertQuota int    `yaml:"daily_alert_quota"`
	// PhoneVerified gates the outbound channel entirely; until it is set
	// alerts are delivered in-app only.
	PhoneVerified bool `yaml:"phone_verified"`
}

// GoalsConfig tunes the goal manager.
type GoalsConfig struct {
	// AllowTaskFallback lets a goal whose criteria are all internal
	// complete when every task is done.
	AllowTaskFallback bool `yaml:"allow_task_fallback"`
}

// DigestConfig controls the human-readable insights digest.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ArchiveConfig controls the sqlite history store.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Scheduler: SchedulerConfig{
			Interval:               "300s",
			CycleTimeout:           "240s",
			StepTimeout:            "30s",
			ProviderTimeout:        "10s",
			HealthTimeout:          "5s",
			BackoffBase:            "5s",
			BackoffCap:             "60s",
			MaxConsecutiveFailures: 5,
		},
		Messaging: MessagingConfig{
			QuietHoursStart: "22:00",
			QuietHoursEnd:   "08:00",
			DailyAlertQuota: 10,
		},
		Digest: DigestConfig{
			Enabled: true,
			Path:    "life_insights.md",
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "lifeos_archive.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file, returning defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers LIFEOS_* environment variables over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIFEOS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LIFEOS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIFEOS_INTERVAL"); v != "" {
		c.Scheduler.Interval = v
	}
	if v := os.Getenv("LIFEOS_QUIET_HOURS_START"); v != "" {
		c.Messaging.QuietHoursStart = v
	}
	if v := os.Getenv("LIFEOS_QUIET_HOURS_END"); v != "" {
		c.Messaging.QuietHoursEnd = v
	}
}

// Durations is the parsed form of SchedulerConfig.
type Durations struct {
	Interval        time.Duration
	CycleTimeout    time.Duration
	StepTimeout     time.Duration
	ProviderTimeout time.Duration
	HealthTimeout   time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
}

// ParseDurations validates and parses the scheduler timing strings. The
// cycle timeout must be strictly less than the interval so that two cycles
// cannot tile.
func (c *Config) ParseDurations() (Durations, error) {
	d := Durations{}
	for _, item := range []struct {
		name string
		raw  string
		dst  *time.Duration
		def  time.Duration
	}{
		{"interval", c.Scheduler.Interval, &d.Interval, 300 * time.Second},
		{"cycle_timeout", c.Scheduler.CycleTimeout, &d.CycleTimeout, 240 * time.Second},
		{"step_timeout", c.Scheduler.StepTimeout, &d.StepTimeout, 30 * time.Second},
		{"provider_timeout", c.Scheduler.ProviderTimeout, &d.ProviderTimeout, 10 * time.Second},
		{"health_timeout", c.Scheduler.HealthTimeout, &d.HealthTimeout, 5 * time.Second},
		{"backoff_base", c.Scheduler.BackoffBase, &d.BackoffBase, 5 * time.Second},
		{"backoff_cap", c.Scheduler.BackoffCap, &d.BackoffCap, 60 * time.Second},
	} {
		if item.raw == "" {
			*item.dst = item.def
			continue
		}
		v, err := time.ParseDuration(item.raw)
		if err != nil {
			return d, fmt.Errorf("invalid %s: %w", item.name, err)
		}
		*item.dst = v
	}

	if d.CycleTimeout >= d.Interval {
		return d, fmt.Errorf("cycle_timeout (%s) must be less than interval (%s)", d.CycleTimeout, d.Interval)
	}
	return d, nil
}

// StatePath returns the engine state file path under the data dir.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "engine_state.json")
}

// HeartbeatPath returns the heartbeat file path under the data dir.
func (c *Config) HeartbeatPath() string {
	return filepath.Join(c.DataDir, "engine-heartbeat.json")
}

// DigestPath returns the insights digest path.
func (c *Config) DigestPath() string {
	if filepath.IsAbs(c.Digest.Path) {
		return c.Digest.Path
	}
	return filepath.Join(c.DataDir, c.Digest.Path)
}

// ArchivePath returns the sqlite archive path.
func (c *Config) ArchivePath() string {
	if filepath.IsAbs(c.Archive.Path) {
		return c.Archive.Path
	}
	return filepath.Join(c.DataDir, c.Archive.Path)
}
