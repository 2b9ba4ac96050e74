package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "v1", cfg.Engine.SchemaVersion)
	assert.Equal(t, 30*24*time.Hour, cfg.Engine.StalenessWindow.Duration())
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadWithFile_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: console
storage:
  driver: sqlite
  path: /tmp/insightd-test.db
engine:
  max_offset: 90m
  conflict_retries: 3
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/insightd-test.db", cfg.Storage.Path)
	assert.Equal(t, 90*time.Minute, cfg.Engine.MaxOffset.Duration())
	assert.Equal(t, 3, cfg.Engine.ConflictRetries)

	// Unspecified sections keep defaults.
	assert.Equal(t, "v1", cfg.Engine.SchemaVersion)
	assert.Equal(t, 4, cfg.Engine.RecomputeConcurrency)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	t.Setenv("INSIGHTD_LOGGING_LEVEL", "warn")
	t.Setenv("INSIGHTD_ENGINE_STALENESS_WINDOW", "168h")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 7*24*time.Hour, cfg.Engine.StalenessWindow.Duration())
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging: [broken")

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.Storage.Driver = "postgres" },
			wantErr: "unknown storage driver",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Storage.Driver = "sqlite"; c.Storage.Path = "" },
			wantErr: "storage.path is required",
		},
		{
			name:    "empty schema version",
			mutate:  func(c *Config) { c.Engine.SchemaVersion = "" },
			wantErr: "schema_version",
		},
		{
			name:    "zero staleness window",
			mutate:  func(c *Config) { c.Engine.StalenessWindow = 0 },
			wantErr: "staleness_window",
		},
		{
			name:    "zero max offset",
			mutate:  func(c *Config) { c.Engine.MaxOffset = 0 },
			wantErr: "max_offset",
		},
		{
			name:    "zero conflict retries",
			mutate:  func(c *Config) { c.Engine.ConflictRetries = 0 },
			wantErr: "conflict_retries",
		},
		{
			name:    "events enabled without url",
			mutate:  func(c *Config) { c.Events.Enabled = true; c.Events.URL = "" },
			wantErr: "events.url",
		},
		{
			name:    "intake enabled without dir",
			mutate:  func(c *Config) { c.Intake.Enabled = true; c.Intake.Dir = "" },
			wantErr: "intake.dir",
		},
		{
			name:    "metrics enabled without addr",
			mutate:  func(c *Config) { c.Metrics.Addr = "" },
			wantErr: "metrics.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration_RejectsNegative(t *testing.T) {
	var d Duration
	require.Error(t, d.UnmarshalText([]byte("-5m")))
	require.NoError(t, d.UnmarshalText([]byte("45m")))
	assert.Equal(t, 45*time.Minute, d.Duration())
}
