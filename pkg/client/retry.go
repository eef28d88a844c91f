package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_retry_exhausted_total",
		Help: "Total number of times the retry budget was exhausted",
	})
)

// RetryPolicy describes exponential backoff for a single operation.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial one).
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// MaxWait caps the cumulative time spent waiting between attempts.
	MaxWait time.Duration

	// Multiplier is applied to the delay after every retry.
	Multiplier float64

	// Jitter randomizes each delay by ±Jitter (0.2 = ±20%). Zero disables it.
	Jitter float64

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the default retry policy: 5 attempts, doubling
// from 500ms, at most 30s of cumulative waiting.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Retryable:   IsTransient,
	}
}

// Delays returns the backoff schedule the policy would follow if every
// attempt failed, already truncated to MaxWait.
func (p RetryPolicy) Delays() []time.Duration {
	p = p.withDefaults()

	var (
		delays []time.Duration
		waited time.Duration
		delay  = p.BaseDelay
	)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		if p.MaxWait > 0 && waited >= p.MaxWait {
			break
		}
		// A zero delay retries immediately.
		d := max(delay, 0)
		if p.MaxWait > 0 {
			d = min(d, p.MaxWait-waited)
		}
		delays = append(delays, d)
		waited += d
		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return delays
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// Retry runs op until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Exhaustion is reported as *FetchExhaustedError for target.
// Non-retryable errors are returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, target string, op func() (T, error)) (T, error) {
	p = p.withDefaults()
	delays := p.Delays()

	var (
		zero    T
		lastErr error
		waited  time.Duration
	)

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("url", target).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return result, nil
		}

		lastErr = err
		if !p.Retryable(err) {
			return zero, err
		}

		// No budget left for another wait
		if attempt > len(delays) {
			break
		}

		class := errorClassOf(err)
		retriesTotal.WithLabelValues(string(class)).Inc()

		wait := applyJitter(delays[attempt-1], p.Jitter)
		if p.MaxWait > 0 {
			wait = min(wait, p.MaxWait-waited)
		}
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		log.Debug().
			Str("url", target).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("url", target).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return zero, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
		waited += wait
	}

	retryExhaustedTotal.Inc()
	log.Warn().
		Str("url", target).
		Int("max_attempts", p.MaxAttempts).
		Dur("waited", waited).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return zero, &FetchExhaustedError{
		URL:       target,
		Attempts:  min(p.MaxAttempts, len(delays)+1),
		Waited:    waited,
		LastError: lastErr,
	}
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 - jitter + rand.Float64()*2*jitter))
}

func errorClassOf(err error) ErrorClass {
	var te *TransientError
	if errors.As(err, &te) {
		return te.ErrorClass
	}
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe.ErrorClass
	}
	return ErrorClassNetwork
}
