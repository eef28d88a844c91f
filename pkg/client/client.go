// Package client provides the HTTP fetch client for the remote listing API
// with rate limiting, retry/backoff, optional conditional-request caching,
// and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_requests_total",
		Help: "Total outbound requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_request_duration_seconds",
		Help:    "Outbound request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_errors_total",
		Help: "Total outbound request errors by class",
	}, []string{"class"})
)

// MaxResponseSize is the largest response body the client will read (10MB).
const MaxResponseSize = 10 * 1024 * 1024

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents bodies that are not a JSON object.
	ErrorClassDecode ErrorClass = "decode"
)

// Document is a decoded JSON object. Numbers are kept as json.Number so
// their textual form survives normalization.
type Document map[string]any

// Limiter gates every outbound attempt.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration

	// ConnectTimeout bounds establishing the TCP connection.
	ConnectTimeout time.Duration

	// Connection pool shared by all calls made through one Client
	MaxConnsPerHost int
	MaxIdleConns    int
	IdleConnTimeout time.Duration

	// Retry policy applied to every fetch
	Retry RetryPolicy
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:       userAgent,
		Timeout:         30 * time.Second,
		ConnectTimeout:  10 * time.Second,
		MaxConnsPerHost: 10,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
		Retry:           DefaultRetryPolicy(),
	}
}

// Client fetches JSON documents. One Client owns one connection pool and is
// meant to be scoped to a single ingestion run.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	limiter    Limiter
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter gates every attempt (including retries) through l.
func WithLimiter(l Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithCache enables conditional requests backed by m.
func WithCache(m *cache.Manager) Option {
	return func(c *Client) { c.cache = m }
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a new client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.MaxConnsPerHost < 0 || cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("connection pool sizes must be >= 0")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		transport: transport,
		config:    cfg,
		logger:    log.With().Str("component", "fetch-client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch GETs url and decodes the body as a JSON object. Transient failures
// are retried per the configured policy; a spent budget surfaces as
// *FetchExhaustedError and 4xx responses as *FatalError.
func (c *Client) Fetch(ctx context.Context, url string) (Document, error) {
	return Retry(ctx, c.config.Retry, url, func() (Document, error) {
		return c.fetchOnce(ctx, url)
	})
}

func (c *Client) fetchOnce(ctx context.Context, url string) (Document, error) {
	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FatalError{URL: url, ErrorClass: ErrorClassClient, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	var (
		cacheKey cache.CacheKey
		cached   *cache.Entry
	)
	if c.cache != nil {
		cacheKey = cache.KeyForURL(req.URL)
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", url).Msg("Cache get error")
		}
		if cached.Conditional() {
			cached.Apply(req)
			c.logger.Debug().Str("url", url).Str("etag", cached.ETag).Msg("Making conditional request")
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("url", url).Msg("HTTP request failed")
		return nil, &TransientError{URL: url, ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		c.logger.Debug().Str("url", url).Msg("304 Not Modified - using cache")
		if err := c.cache.Revalidate(ctx, cacheKey, cached, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cache entry")
		}
		return decodeDocument(url, cached.Body)
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", url).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Remote API error")
		if shouldRetry(class) {
			return nil, &TransientError{URL: url, StatusCode: resp.StatusCode, ErrorClass: class}
		}
		return nil, &FatalError{URL: url, StatusCode: resp.StatusCode, ErrorClass: class}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransientError{URL: url, StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxResponseSize {
		return nil, &FatalError{URL: url, StatusCode: resp.StatusCode, ErrorClass: ErrorClassDecode,
			Err: fmt.Errorf("response body too large (max %d bytes)", MaxResponseSize)}
	}

	doc, err := decodeDocument(url, body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, err
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		if err := c.cache.Put(ctx, cacheKey, c.cache.Entry(url, resp.Header, body)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	c.logger.Debug().
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Fetched document")

	return doc, nil
}

func decodeDocument(url string, body []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &FatalError{URL: url, StatusCode: http.StatusOK, ErrorClass: ErrorClassDecode, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &FatalError{URL: url, StatusCode: http.StatusOK, ErrorClass: ErrorClassDecode, Err: ErrNotAnObject}
	}
	return Document(obj), nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	if status >= 500 {
		return ErrorClassServer
	}
	return ErrorClassClient
}

// Close releases idle pooled connections.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}
