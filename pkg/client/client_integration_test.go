//go:build integration

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		client.Close()
		redisContainer.Terminate(context.Background())
	})

	return client
}

func TestIntegration_ConditionalRequestFlow(t *testing.T) {
	redisClient := setupRedisContainer(t)

	var requests, conditional atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		if r.Header.Get("If-None-Match") == `"planets-page-1"` {
			conditional.Add(1)
			w.Header().Set("Expires", time.Now().Add(10*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.Header().Set("ETag", `"planets-page-1"`)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok","total_records":1,"results":[{"uid":"1","name":"Tatooine"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, WithCache(cache.NewManager(redisClient)))
	ctx := context.Background()
	target := server.URL + "/api/planets?page=1"

	first, err := c.Fetch(ctx, target)
	if err != nil {
		t.Fatalf("first Fetch failed: %v", err)
	}

	second, err := c.Fetch(ctx, target)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}

	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
	if conditional.Load() != 1 {
		t.Errorf("conditional requests = %d, want 1", conditional.Load())
	}
	if first["message"] != second["message"] {
		t.Errorf("304 should replay the cached document: %v vs %v", first, second)
	}

	u, _ := url.Parse(target)
	entry, err := cache.NewManager(redisClient).Get(ctx, cache.KeyForURL(u))
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if entry.ETag != `"planets-page-1"` {
		t.Errorf("cached ETag = %q", entry.ETag)
	}
	if ttl := entry.TTL(time.Now()); ttl < 9*time.Minute {
		t.Errorf("TTL should have been refreshed by the 304, got %v", ttl)
	}
}

func TestIntegration_ErrorsAreNotCached(t *testing.T) {
	redisClient := setupRedisContainer(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, WithCache(cache.NewManager(redisClient)))
	ctx := context.Background()
	target := server.URL + "/api/planets/999"

	if _, err := c.Fetch(ctx, target); !IsFatal(err) {
		t.Fatalf("expected FatalError, got %v", err)
	}

	u, _ := url.Parse(target)
	if _, err := cache.NewManager(redisClient).Get(ctx, cache.KeyForURL(u)); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("expected cache miss for 404, got %v", err)
	}
}
