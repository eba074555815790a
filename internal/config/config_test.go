package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load("", env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, StorageFile, cfg.Storage.Type)
	assert.Equal(t, 2*time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, 7*24*time.Hour, cfg.Mail.CleanupThreshold)
	assert.False(t, cfg.Mail.CleanupEnabled)
	assert.Equal(t, 120*time.Minute, cfg.Mail.CleanupInterval)
	assert.Equal(t, time.Minute, cfg.Mail.CleanupDelay)
	assert.Equal(t, filepath.Join("data", "mail.db"), cfg.Storage.BoltFile())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, `
storage:
  type: bolt
  bolt_path: /var/lib/proxymail/mail.db
server:
  port: 9000
mail:
  page_size: 5
  cleanup_enabled: false
  cleanup_threshold: 72h
snapshot:
  interval: 30s
`)

	cfg, err := load(path, env(nil))
	require.NoError(t, err)

	assert.Equal(t, StorageBolt, cfg.Storage.Type)
	assert.Equal(t, "/var/lib/proxymail/mail.db", cfg.Storage.BoltPath)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Mail.PageSize)
	assert.False(t, cfg.Mail.CleanupEnabled)
	assert.Equal(t, 72*time.Hour, cfg.Mail.CleanupThreshold)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.Interval)
	// Unset keys keep their defaults
	assert.Equal(t, "data", cfg.Storage.DataDir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "storage:\n  type: bolt\nserver:\n  port: 9000\n")

	cfg, err := load(path, env(map[string]string{
		"STORAGE_TYPE": "REDIS",
		"REDIS_URL":    "redis://localhost:6379/0",
		"LISTEN_PORT":  "9100",
		"DATA_DIR":     "/tmp/mail",
	}))
	require.NoError(t, err)

	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Storage.RedisURL)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "/tmp/mail", cfg.Storage.DataDir)
}

func TestBoltFileFollowsDataDir(t *testing.T) {
	cfg, err := load("", env(map[string]string{
		"STORAGE_TYPE": "bolt",
		"DATA_DIR":     "/srv/mail",
	}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/mail", "mail.db"), cfg.Storage.BoltFile())

	cfg, err = load("", env(map[string]string{
		"DATA_DIR":  "/srv/mail",
		"BOLT_PATH": "/var/lib/mail.db",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mail.db", cfg.Storage.BoltFile())
}

func TestCleanupSettingsFromFile(t *testing.T) {
	path := writeFile(t, "mail:\n  cleanup_enabled: true\n  cleanup_interval: 30m\n  cleanup_delay: 10s\n")

	cfg, err := load(path, env(nil))
	require.NoError(t, err)
	assert.True(t, cfg.Mail.CleanupEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Mail.CleanupInterval)
	assert.Equal(t, 10*time.Second, cfg.Mail.CleanupDelay)
}

func TestConfigFileFromEnv(t *testing.T) {
	path := writeFile(t, "server:\n  port: 7000\n")

	cfg, err := load("ignored.yaml", env(map[string]string{"CONFIG_FILE": path}))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad yaml", file: "storage: [unclosed"},
		{name: "bad port", env: map[string]string{"LISTEN_PORT": "http"}},
		{name: "unknown storage", env: map[string]string{"STORAGE_TYPE": "sqlite"}},
		{name: "redis without url", env: map[string]string{"STORAGE_TYPE": "redis"}},
		{name: "zero snapshot interval", file: "snapshot:\n  interval: 0s\n"},
		{name: "enabled cleanup without interval", file: "mail:\n  cleanup_enabled: true\n  cleanup_interval: 0s\n"},
		{name: "negative cleanup delay", file: "mail:\n  cleanup_delay: -1m\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := load(path, env(tt.env))
			assert.Error(t, err)
		})
	}
}
