// Package config loads runtime configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/client"
	"github.com/Sternrassler/swapi-ingest/pkg/logging"
	"github.com/Sternrassler/swapi-ingest/pkg/pagination"
	"github.com/Sternrassler/swapi-ingest/pkg/pipeline"
	"github.com/Sternrassler/swapi-ingest/pkg/snapshot"
	"github.com/joho/godotenv"
)

// Blob backends.
const (
	BackendBadger = "badger"
	BackendGCS    = "gcs"
)

// DefaultBaseURL is the planets listing of the public SWAPI mirror.
const DefaultBaseURL = "https://www.swapi.tech/api/planets"

// Config is the full runtime configuration.
type Config struct {
	BaseURL      string
	PageSize     int
	MaxItems     int
	CommitEvery  int
	RateInterval time.Duration

	// PageConcurrency is how many listing pages are fetched ahead.
	PageConcurrency int

	HTTPTimeout        time.Duration
	HTTPConnectTimeout time.Duration
	HTTPMaxConns       int
	HTTPMaxIdleConns   int

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxWait     time.Duration

	DatabaseDSN string

	BlobBackend     string
	BlobPath        string
	Bucket          string
	GCSProjectID    string
	CredentialsFile string
	SnapshotPrefix  string

	// RedisAddr enables the document cache and the run lock when set.
	RedisAddr string

	LogLevel  logging.LogLevel
	LogPretty bool

	ListenAddr string
}

// LoadEnvFiles loads .env and .env.local from the working directory.
// Variables already present in the environment win.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load reads the .env files and then the environment.
func Load() (Config, error) {
	LoadEnvFiles()
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset. All malformed values are reported together.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		BaseURL:      p.str("SWAPI_BASE_URL", DefaultBaseURL),
		PageSize:     p.integer("SWAPI_PAGE_SIZE", 10),
		MaxItems:     p.integer("INGEST_MAX_ITEMS", 10),
		CommitEvery:  p.integer("INGEST_COMMIT_EVERY", 10),
		RateInterval: p.duration("RATE_LIMIT_INTERVAL", time.Second),

		PageConcurrency: p.integer("SWAPI_PAGE_CONCURRENCY", 1),

		HTTPTimeout:        p.duration("HTTP_TIMEOUT", 30*time.Second),
		HTTPConnectTimeout: p.duration("HTTP_CONNECT_TIMEOUT", 10*time.Second),
		HTTPMaxConns:       p.integer("HTTP_MAX_CONNS", 10),
		HTTPMaxIdleConns:   p.integer("HTTP_MAX_IDLE_CONNS", 10),

		RetryMaxAttempts: p.integer("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   p.duration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxWait:     p.duration("RETRY_MAX_WAIT", 30*time.Second),

		DatabaseDSN: p.str("DB_DSN", ""),

		BlobBackend:     strings.ToLower(p.str("BLOB_BACKEND", BackendBadger)),
		BlobPath:        p.str("BLOB_PATH", "data/snapshots"),
		Bucket:          p.str("GCS_BUCKET", "swapi-snapshots"),
		GCSProjectID:    p.str("GCS_PROJECT_ID", ""),
		CredentialsFile: p.str("GOOGLE_APPLICATION_CREDENTIALS", ""),
		SnapshotPrefix:  p.str("SNAPSHOT_PREFIX", snapshot.DefaultPrefix),

		RedisAddr: p.str("REDIS_ADDR", ""),

		LogLevel:  logging.LogLevel(p.str("LOG_LEVEL", string(logging.LevelInfo))),
		LogPretty: p.boolean("LOG_PRETTY", false),

		ListenAddr: p.str("HTTP_LISTEN_ADDR", ":8080"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and backend selection.
func (c Config) Validate() error {
	var errs []error
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("SWAPI_PAGE_SIZE must be > 0 (got %d)", c.PageSize))
	}
	if c.PageConcurrency < 1 {
		errs = append(errs, fmt.Errorf("SWAPI_PAGE_CONCURRENCY must be >= 1 (got %d)", c.PageConcurrency))
	}
	if c.MaxItems < 0 {
		errs = append(errs, fmt.Errorf("INGEST_MAX_ITEMS must be >= 0 (got %d)", c.MaxItems))
	}
	if c.CommitEvery <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_COMMIT_EVERY must be > 0 (got %d)", c.CommitEvery))
	}
	if c.RateInterval < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_INTERVAL must be >= 0 (got %s)", c.RateInterval))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1 (got %d)", c.RetryMaxAttempts))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("RETRY_BASE_DELAY must be >= 0 (got %s)", c.RetryBaseDelay))
	}
	if c.RetryMaxWait < 0 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_WAIT must be >= 0 (got %s)", c.RetryMaxWait))
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch c.BlobBackend {
	case BackendBadger:
		if c.BlobPath == "" {
			errs = append(errs, errors.New("BLOB_PATH is required for the badger backend"))
		}
	case BackendGCS:
		if c.Bucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND must be %q or %q (got %q)", BackendBadger, BackendGCS, c.BlobBackend))
	}
	return errors.Join(errs...)
}

// Pipeline returns the orchestrator configuration.
func (c Config) Pipeline(userAgent string) pipeline.Config {
	cfg := pipeline.DefaultConfig(c.BaseURL, userAgent)
	cfg.Pagination = pagination.Config{PageSize: c.PageSize, Concurrency: c.PageConcurrency}
	cfg.MaxItems = c.MaxItems
	cfg.CommitEvery = c.CommitEvery
	cfg.RateInterval = c.RateInterval
	cfg.Client = c.Client(userAgent)
	return cfg
}

// Client returns the fetch client configuration.
func (c Config) Client(userAgent string) client.Config {
	cfg := client.DefaultConfig(userAgent)
	cfg.Timeout = c.HTTPTimeout
	cfg.ConnectTimeout = c.HTTPConnectTimeout
	cfg.MaxConnsPerHost = c.HTTPMaxConns
	cfg.MaxIdleConns = c.HTTPMaxIdleConns
	cfg.Retry.MaxAttempts = c.RetryMaxAttempts
	cfg.Retry.BaseDelay = c.RetryBaseDelay
	cfg.Retry.MaxWait = c.RetryMaxWait
	return cfg
}

// Logging returns the logger configuration.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Pretty = c.LogPretty
	return cfg
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}
