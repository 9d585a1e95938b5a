package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/storage"
	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "ATRIUM_TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "ATRIUM_TEST_VAR_NOT_SET",
			defaultValue: "default",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}
			if got := getEnv(tt.key, tt.defaultValue); got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvTyped tests the typed helpers, including fallback on unparsable values
func TestGetEnvTyped(t *testing.T) {
	t.Setenv("ATRIUM_TEST_BOOL", "1")
	t.Setenv("ATRIUM_TEST_INT", "42")
	t.Setenv("ATRIUM_TEST_BAD_INT", "forty")
	t.Setenv("ATRIUM_TEST_DURATION", "90s")
	t.Setenv("ATRIUM_TEST_BAD_DURATION", "soon")
	t.Setenv("ATRIUM_TEST_FLOAT", "0.25")

	assert.True(t, getEnvBool("ATRIUM_TEST_BOOL", false))
	assert.False(t, getEnvBool("ATRIUM_TEST_BOOL_UNSET", false))
	assert.Equal(t, 42, getEnvInt("ATRIUM_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("ATRIUM_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("ATRIUM_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("ATRIUM_TEST_BAD_DURATION", time.Second))
	assert.Equal(t, 0.25, getEnvFloat("ATRIUM_TEST_FLOAT", 1))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, storage.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Invites.Validity)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestOTelSettingsFromEnv(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("ATRIUM_OTEL_SAMPLE_RATIO", "0.1")
	t.Setenv("ATRIUM_OTEL_EXPORT_INTERVAL", "30s")
	t.Setenv("ATRIUM_OTEL_BATCH_TIMEOUT", "2s")
	t.Setenv("ATRIUM_HEALTH_TIMEOUT", "1s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	otelCfg := cfg.OTel()
	assert.Equal(t, 0.1, otelCfg.SampleRatio)
	assert.Equal(t, 30*time.Second, otelCfg.ExportInterval)
	assert.Equal(t, 2*time.Second, otelCfg.BatchTimeout)
	assert.Equal(t, time.Second, cfg.Server.HealthTimeout)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atrium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "8000"
database:
  driver: sqlite3
  url: file:atrium.db
redis:
  url: redis://localhost:6379/1
invites:
  validity: 48h
cache:
  backend: redis
  ttl: 30s
observability:
  log_level: debug
`), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("ATRIUM_PORT", "8001")
	t.Setenv("ATRIUM_CACHE_TTL", "1m")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// File values
	assert.Equal(t, storage.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 48*time.Hour, cfg.Invites.Validity)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	// Environment wins over the file
	assert.Equal(t, "8001", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	// Untouched defaults survive the overlay
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "@every 5m", cfg.Invites.SweepSchedule)

	assert.Equal(t, "file:atrium.db", cfg.Storage().URL)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisClient().URL)
	assert.Equal(t, time.Minute, cfg.PermissionCache().TTL)
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not, a, map"), 0o600))
	t.Setenv(FileEnv, path)
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"zero validity", func(c *Config) { c.Invites.Validity = 0 }, "invite validity"},
		{"redis cache without redis", func(c *Config) { c.Cache.Backend = CacheBackendRedis }, "redis URL is required"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "disk" }, "invalid cache backend"},
		{"half oidc", func(c *Config) { c.OIDC.IssuerURL = "https://issuer" }, "client_id is required"},
		{"bad log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "endpoint is required"},
		{"otel bad ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelSampleRatio = 2
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWatchLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "atrium.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: info\n"), 0o600))

	logger := storagetest.QuietLogger()
	logger.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- WatchLogLevel(ctx, path, logger) }()

	// Give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: debug\n"), 0o600))

	assert.Eventually(t, func() bool { return logger.GetLevel() == logrus.DebugLevel }, 2*time.Second, 20*time.Millisecond)

	// Invalid levels are ignored
	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: loud\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	cancel()
	require.NoError(t, <-done)
}

func TestReloadLogLevel_KeepsLevelWithoutExplicitSetting(t *testing.T) {
	t.Setenv("ATRIUM_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "atrium.yaml")
	logger := storagetest.QuietLogger()
	logger.SetLevel(logrus.DebugLevel)

	// Truncated by a writer that has not finished yet
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.NoError(t, reloadLogLevel(path, logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: sqlite3\n"), 0o600))
	require.NoError(t, reloadLogLevel(path, logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("observability: [\n"), 0o600))
	assert.Error(t, reloadLogLevel(path, logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte("observability:\n  log_level: warn\n"), 0o600))
	require.NoError(t, reloadLogLevel(path, logger))
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}
