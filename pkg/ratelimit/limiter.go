// Package ratelimit enforces a minimum interval between outbound requests.
//
// A Limiter is shared by every fetch of one ingestion run (listing pages,
// detail documents and retries alike). Callers queue in FIFO order and
// never start closer together than the configured interval.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate limiting.
var (
	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_rate_limit_wait_seconds",
		Help:    "Time spent waiting for a request slot",
		Buckets: []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	acquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_rate_limit_acquired_total",
		Help: "Total number of request slots granted",
	})
)

// Limiter grants request slots at most once per interval.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a Limiter. A zero interval disables throttling.
func New(interval time.Duration, logger zerolog.Logger) (*Limiter, error) {
	if interval < 0 {
		return nil, fmt.Errorf("rate limit interval must be >= 0 (got %s)", interval)
	}

	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Limiter{
		// Burst 1: the first call proceeds immediately, every later one waits
		// a full interval after its predecessor.
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		logger:   logger,
	}, nil
}

// Acquire blocks until the caller may issue its request or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("acquire request slot: %w", err)
	}

	waited := time.Since(start)
	waitSeconds.Observe(waited.Seconds())
	acquiredTotal.Inc()

	l.logger.Trace().Dur("waited", waited).Msg("Request slot acquired")
	return nil
}

// Interval returns the minimum spacing between request starts.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
