package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"SWAPI_BASE_URL", "SWAPI_PAGE_SIZE", "SWAPI_PAGE_CONCURRENCY", "INGEST_MAX_ITEMS", "INGEST_COMMIT_EVERY",
	"RATE_LIMIT_INTERVAL", "HTTP_TIMEOUT", "HTTP_CONNECT_TIMEOUT", "HTTP_MAX_CONNS",
	"HTTP_MAX_IDLE_CONNS", "RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY", "RETRY_MAX_WAIT",
	"DB_DSN", "BLOB_BACKEND", "BLOB_PATH", "GCS_BUCKET", "GCS_PROJECT_ID",
	"GOOGLE_APPLICATION_CREDENTIALS", "SNAPSHOT_PREFIX", "REDIS_ADDR", "LOG_LEVEL",
	"LOG_PRETTY", "HTTP_LISTEN_ADDR",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 10, cfg.MaxItems)
	assert.Equal(t, 10, cfg.CommitEvery)
	assert.Equal(t, time.Second, cfg.RateInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 10*time.Second, cfg.HTTPConnectTimeout)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.RetryMaxWait)
	assert.Equal(t, BackendBadger, cfg.BlobBackend)
	assert.Equal(t, "swapi_planets", cfg.SnapshotPrefix)
	assert.Equal(t, logging.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.RedisAddr)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWAPI_BASE_URL", "http://localhost:9999/api/planets")
	t.Setenv("INGEST_MAX_ITEMS", "0")
	t.Setenv("RATE_LIMIT_INTERVAL", "250ms")
	t.Setenv("BLOB_BACKEND", "GCS")
	t.Setenv("GCS_BUCKET", "my-bucket")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999/api/planets", cfg.BaseURL)
	assert.Equal(t, 0, cfg.MaxItems)
	assert.Equal(t, 250*time.Millisecond, cfg.RateInterval)
	assert.Equal(t, BackendGCS, cfg.BlobBackend)
	assert.Equal(t, "my-bucket", cfg.Bucket)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, logging.LevelDebug, cfg.LogLevel)
}

func TestFromEnv_ReportsAllMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SWAPI_PAGE_SIZE", "ten")
	t.Setenv("HTTP_TIMEOUT", "30")
	t.Setenv("LOG_PRETTY", "maybe")

	_, err := FromEnv()
	require.Error(t, err)

	msg := err.Error()
	for _, key := range []string{"SWAPI_PAGE_SIZE", "HTTP_TIMEOUT", "LOG_PRETTY"} {
		assert.True(t, strings.Contains(msg, key), "expected %s in %q", key, msg)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	base, err := FromEnv()
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"negative cap", func(c *Config) { c.MaxItems = -1 }, "INGEST_MAX_ITEMS"},
		{"zero commit size", func(c *Config) { c.CommitEvery = 0 }, "INGEST_COMMIT_EVERY"},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "SWAPI_PAGE_SIZE"},
		{"zero page concurrency", func(c *Config) { c.PageConcurrency = 0 }, "SWAPI_PAGE_CONCURRENCY"},
		{"negative base delay", func(c *Config) { c.RetryBaseDelay = -time.Second }, "RETRY_BASE_DELAY"},
		{"negative max wait", func(c *Config) { c.RetryMaxWait = -time.Second }, "RETRY_MAX_WAIT"},
		{"no attempts", func(c *Config) { c.RetryMaxAttempts = 0 }, "RETRY_MAX_ATTEMPTS"},
		{"unknown backend", func(c *Config) { c.BlobBackend = "s3" }, "BLOB_BACKEND"},
		{"gcs without bucket", func(c *Config) { c.BlobBackend = BackendGCS; c.Bucket = "" }, "GCS_BUCKET"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"badger without path", func(c *Config) { c.BlobPath = "" }, "BLOB_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPipeline(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("INGEST_COMMIT_EVERY", "4")
	t.Setenv("HTTP_MAX_CONNS", "2")
	t.Setenv("SWAPI_PAGE_CONCURRENCY", "3")
	t.Setenv("RETRY_BASE_DELAY", "0s")

	cfg, err := FromEnv()
	require.NoError(t, err)

	pc := cfg.Pipeline("swapi-ingest/test")
	assert.Equal(t, cfg.BaseURL, pc.BaseURL)
	assert.Equal(t, 4, pc.CommitEvery)
	assert.Equal(t, 10, pc.Pagination.PageSize)
	assert.Equal(t, 3, pc.Pagination.Concurrency)
	assert.Equal(t, 3, pc.Client.Retry.MaxAttempts)
	assert.Equal(t, time.Duration(0), pc.Client.Retry.BaseDelay)
	assert.Equal(t, 2, pc.Client.MaxConnsPerHost)
	assert.Equal(t, "swapi-ingest/test", pc.Client.UserAgent)
}

func TestLoadEnvFiles_DoesNotOverrideExistingEnv(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	content := "DB_DSN=from_file\nREDIS_ADDR=localhost:6379\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".env"), []byte(content), 0644))

	t.Setenv("DB_DSN", "from_env")
	// godotenv only fills variables that are absent
	require.NoError(t, os.Unsetenv("REDIS_ADDR"))

	cwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() {
		_ = os.Chdir(cwd)
		_ = os.Unsetenv("REDIS_ADDR")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.DatabaseDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}
