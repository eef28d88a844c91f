// Package runlock keeps two ingestion runs from overlapping by holding a
// token-guarded Redis key for the duration of a run.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrRunInProgress is returned when another run holds the lock.
	ErrRunInProgress = errors.New("ingestion run already in progress")

	// ErrLockNotHeld is returned when releasing or extending a lock that
	// expired or was taken over.
	ErrLockNotHeld = errors.New("lock not held")
)

// DefaultKey is the Redis key guarding ingestion runs.
const DefaultKey = "swapi:ingest:lock"

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker hands out the run lock.
type Locker struct {
	rdb    redis.UniversalClient
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewLocker creates a Locker on key. The lock expires after ttl unless the
// holder keeps it alive; it is refreshed every ttl/3 while held.
func NewLocker(rdb redis.UniversalClient, key string, ttl time.Duration, logger zerolog.Logger) *Locker {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{rdb: rdb, key: key, ttl: ttl, logger: logger}
}

// Lock is a held run lock.
type Lock struct {
	locker *Locker
	token  string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Acquire takes the lock or fails with ErrRunInProgress.
func (l *Locker) Acquire(ctx context.Context) (*Lock, error) {
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	lock := &Lock{
		locker: l,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lock.keepAlive()

	l.logger.Debug().Str("key", l.key).Str("token", token).Msg("Run lock acquired")
	return lock, nil
}

// Lock acquires the run lock and returns its release function.
func (l *Locker) Lock(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// Extend resets the lock's TTL.
func (lock *Lock) Extend(ctx context.Context) error {
	l := lock.locker
	res, err := extendScript.Run(ctx, l.rdb, []string{l.key}, lock.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend run lock: %w", err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Release stops the keep-alive and deletes the key if it is still ours.
func (lock *Lock) Release(ctx context.Context) error {
	lock.once.Do(func() { close(lock.stop) })
	<-lock.done

	l := lock.locker
	res, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, lock.token).Int64()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}

	l.logger.Debug().Str("key", l.key).Msg("Run lock released")
	return nil
}

func (lock *Lock) keepAlive() {
	defer close(lock.done)

	ticker := time.NewTicker(lock.locker.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-lock.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), lock.locker.ttl/3)
			err := lock.Extend(ctx)
			cancel()
			if err != nil {
				lock.locker.logger.Warn().Err(err).Str("key", lock.locker.key).Msg("Failed to extend run lock")
				if errors.Is(err, ErrLockNotHeld) {
					return
				}
			}
		}
	}
}
