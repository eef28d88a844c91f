package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()

	cfg := DefaultConfig("swapi-ingest-test/1.0")
	cfg.Timeout = 2 * time.Second
	cfg.Retry = fastPolicy(5)

	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: true},
		{name: "negative pool", mutate: func(c *Config) { c.MaxConnsPerHost = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("swapi-ingest-test/1.0")
			tt.mutate(&cfg)

			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("ua")

	if cfg.UserAgent != "ua" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", cfg.Retry.MaxAttempts)
	}
}

func TestFetch_DecodesObject(t *testing.T) {
	var userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok","total_records":23,"results":[{"uid":"1"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	doc, err := c.Fetch(context.Background(), server.URL+"/api/planets")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if userAgent != "swapi-ingest-test/1.0" {
		t.Errorf("User-Agent = %q", userAgent)
	}
	total, ok := doc["total_records"].(json.Number)
	if !ok || total.String() != "23" {
		t.Errorf("total_records = %#v, want json.Number 23", doc["total_records"])
	}
}

func TestFetch_NonObjectIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"just a string"`))
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Fetch(context.Background(), server.URL)

	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FatalError, got %T: %v", err, err)
	}
	if fe.ErrorClass != ErrorClassDecode {
		t.Errorf("ErrorClass = %s, want decode", fe.ErrorClass)
	}
}

func TestFetch_RetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	if _, err := c.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetch_ExhaustedAfterPersistent503(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Fetch(context.Background(), server.URL)

	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError, got %T: %v", err, err)
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
	var te *TransientError
	if !errors.As(err, &te) || te.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("last error should be the 503, got %v", exhausted.LastError)
	}
}

func TestFetch_NoRetryOnClientError(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusBadRequest} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			c := newTestClient(t)
			_, err := c.Fetch(context.Background(), server.URL)

			var fe *FatalError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FatalError, got %T: %v", err, err)
			}
			if fe.StatusCode != status {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, status)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
		})
	}
}

type countingLimiter struct {
	mu    sync.Mutex
	count int
	err   error
}

func (l *countingLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	return l.err
}

func TestFetch_LimiterGatesEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	limiter := &countingLimiter{}
	c := newTestClient(t, WithLimiter(limiter))
	if _, err := c.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}

	if limiter.count != 2 {
		t.Errorf("limiter acquired %d times, want 2", limiter.count)
	}
}

func TestFetch_LimiterErrorStopsFetch(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	limiter := &countingLimiter{err: context.Canceled}
	c := newTestClient(t, WithLimiter(limiter))
	_, err := c.Fetch(context.Background(), server.URL)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("no request should reach the server")
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(t)
	_, err := c.Fetch(ctx, server.URL)
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsFatal(err) {
		t.Errorf("cancellation must not look like a fatal response: %v", err)
	}
}

func TestFetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"blob":"`))
		chunk := make([]byte, 1024*1024)
		for i := range chunk {
			chunk[i] = 'a'
		}
		for range 11 {
			w.Write(chunk)
		}
		w.Write([]byte(`"}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	_, err := c.Fetch(context.Background(), server.URL)
	if !IsFatal(err) {
		t.Errorf("expected FatalError for oversized body, got %v", err)
	}
}
