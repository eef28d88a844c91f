package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultMaxTTL bounds how long any document stays in Redis.
const DefaultMaxTTL = time.Hour

// Manager stores documents in Redis keyed by request URL.
type Manager struct {
	redis      redis.UniversalClient
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaultTTL sets the lifetime of responses without freshness headers.
func WithDefaultTTL(d time.Duration) Option {
	return func(m *Manager) { m.defaultTTL = d }
}

// WithMaxTTL caps the lifetime of every entry.
func WithMaxTTL(d time.Duration) Option {
	return func(m *Manager) { m.maxTTL = d }
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a cache manager on redisClient.
func NewManager(redisClient redis.UniversalClient, opts ...Option) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	m := &Manager{
		redis:      redisClient,
		defaultTTL: DefaultTTL,
		maxTTL:     DefaultMaxTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Entry builds an entry for a fresh 200 response using the manager's clock
// and TTL policy.
func (m *Manager) Entry(rawURL string, h http.Header, body []byte) *Entry {
	return m.clamp(NewEntry(rawURL, h, body, m.now(), m.defaultTTL))
}

func (m *Manager) clamp(e *Entry) *Entry {
	if m.maxTTL > 0 {
		if limit := e.CachedAt.Add(m.maxTTL); e.Expires.After(limit) {
			e.Expires = limit
		}
	}
	return e
}

// Get retrieves the entry stored under key. Missing and expired entries
// both return ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			lookupsTotal.WithLabelValues(resultMiss).Inc()
			return nil, ErrCacheMiss
		}
		failuresTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		failuresTotal.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.Expired(m.now()) {
		_ = m.Delete(ctx, key)
		lookupsTotal.WithLabelValues(resultExpired).Inc()
		return nil, ErrCacheMiss
	}

	lookupsTotal.WithLabelValues(resultHit).Inc()
	return &entry, nil
}

// Put stores entry under key until it expires. Entries that are already
// stale are not written.
func (m *Manager) Put(ctx context.Context, key CacheKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL(m.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		failuresTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		failuresTotal.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		failuresTotal.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Revalidate records a 304 for entry: its lifetime is recomputed from the
// 304's headers and it is stored again under key.
func (m *Manager) Revalidate(ctx context.Context, key CacheKey, entry *Entry, h http.Header) error {
	revalidationsTotal.Inc()

	now := m.now()
	refreshed := *entry
	refreshed.CachedAt = now
	refreshed.Expires = Freshness(h, now, m.defaultTTL)
	if etag := h.Get("ETag"); etag != "" {
		refreshed.ETag = etag
	}
	return m.Put(ctx, key, m.clamp(&refreshed))
}
