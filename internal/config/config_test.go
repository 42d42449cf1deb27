package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.Interval != "300s" {
		t.Errorf("Interval = %q, want 300s", cfg.Scheduler.Interval)
	}
	if cfg.Messaging.DailyAlertQuota != 10 {
		t.Errorf("DailyAlertQuota = %d, want 10", cfg.Messaging.DailyAlertQuota)
	}
	if cfg.Messaging.PhoneVerified {
		t.Error("PhoneVerified should default to false")
	}
	if !cfg.Digest.Enabled || !cfg.Archive.Enabled {
		t.Error("digest and archive should default to enabled")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifeos.yaml")
	body := `
data_dir: /var/lib/lifeos
scheduler:
  interval: 60s
  cycle_timeout: 45s
messaging:
  daily_alert_quota: 3
  phone_verified: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/var/lib/lifeos" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Scheduler.Interval != "60s" || cfg.Scheduler.CycleTimeout != "45s" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Messaging.DailyAlertQuota != 3 || !cfg.Messaging.PhoneVerified {
		t.Errorf("messaging = %+v", cfg.Messaging)
	}
	// Unset sections keep their defaults.
	if cfg.Scheduler.StepTimeout != "30s" {
		t.Errorf("StepTimeout = %q, want default 30s", cfg.Scheduler.StepTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifeos.yaml")
	if err := os.WriteFile(path, []byte("scheduler: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should reject malformed YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LIFEOS_DATA_DIR", "/tmp/lifeos-env")
	t.Setenv("LIFEOS_INTERVAL", "120s")
	t.Setenv("LIFEOS_QUIET_HOURS_START", "23:30")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/tmp/lifeos-env" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.Scheduler.Interval != "120s" {
		t.Errorf("Interval = %q", cfg.Scheduler.Interval)
	}
	if cfg.Messaging.QuietHoursStart != "23:30" {
		t.Errorf("QuietHoursStart = %q", cfg.Messaging.QuietHoursStart)
	}
}

func TestParseDurations(t *testing.T) {
	cfg := Default()
	d, err := cfg.ParseDurations()
	if err != nil {
		t.Fatalf("ParseDurations() error = %v", err)
	}
	if d.Interval != 300*time.Second || d.CycleTimeout != 240*time.Second {
		t.Errorf("durations = %+v", d)
	}
	if d.BackoffBase != 5*time.Second || d.BackoffCap != 60*time.Second {
		t.Errorf("backoff = %v/%v", d.BackoffBase, d.BackoffCap)
	}
}

func TestParseDurations_CycleTimeoutMustFitInterval(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.Interval = "30s"
	cfg.Scheduler.CycleTimeout = "30s"
	if _, err := cfg.ParseDurations(); err == nil {
		t.Fatal("cycle_timeout == interval should be rejected")
	}
}

func TestParseDurations_InvalidString(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.StepTimeout = "soon"
	if _, err := cfg.ParseDurations(); err == nil {
		t.Fatal("invalid duration should be rejected")
	}
}

func TestParseDurations_EmptyFieldsUseDefaults(t *testing.T) {
	cfg := &Config{}
	d, err := cfg.ParseDurations()
	if err != nil {
		t.Fatalf("ParseDurations() error = %v", err)
	}
	if d.StepTimeout != 30*time.Second || d.ProviderTimeout != 10*time.Second {
		t.Errorf("durations = %+v", d)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	if got := cfg.StatePath(); got != filepath.Join("/data", "engine_state.json") {
		t.Errorf("StatePath() = %q", got)
	}
	if got := cfg.DigestPath(); got != filepath.Join("/data", "life_insights.md") {
		t.Errorf("DigestPath() = %q", got)
	}
	cfg.Archive.Path = "/elsewhere/archive.db"
	if got := cfg.ArchivePath(); got != "/elsewhere/archive.db" {
		t.Errorf("ArchivePath() = %q", got)
	}
}
