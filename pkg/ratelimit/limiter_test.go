package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsNegativeInterval(t *testing.T) {
	_, err := New(-time.Second, zerolog.Nop())
	require.Error(t, err)
}

func TestAcquire_FirstCallIsImmediate(t *testing.T) {
	l, err := New(time.Second, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquire_SpacesSequentialCalls(t *testing.T) {
	const interval = 40 * time.Millisecond
	l, err := New(interval, zerolog.Nop())
	require.NoError(t, err)

	var starts []time.Time
	for range 4 {
		require.NoError(t, l.Acquire(context.Background()))
		starts = append(starts, time.Now())
	}

	// x/time/rate grants a small amount of slack around each token
	tolerance := 5 * time.Millisecond
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		assert.GreaterOrEqual(t, gap, interval-tolerance, "gap %d", i)
	}
}

func TestAcquire_SpacesConcurrentCalls(t *testing.T) {
	const interval = 30 * time.Millisecond
	l, err := New(interval, zerolog.Nop())
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		starts []time.Time
		wg     sync.WaitGroup
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, starts, 5)
	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	// Five slots need at least four full intervals
	assert.GreaterOrEqual(t, last.Sub(first), 4*interval-10*time.Millisecond)
}

func TestAcquire_ZeroIntervalNeverWaits(t *testing.T) {
	l, err := New(0, zerolog.Nop())
	require.NoError(t, err)

	start := time.Now()
	for range 100 {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, time.Duration(0), l.Interval())
}

func TestAcquire_ContextCancelled(t *testing.T) {
	l, err := New(time.Hour, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// rate.Limiter refuses up front when the deadline cannot be met
	start := time.Now()
	require.Error(t, l.Acquire(ctx))
	assert.Less(t, time.Since(start), time.Second)
}
