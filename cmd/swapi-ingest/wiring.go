package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-ingest/internal/config"
	"github.com/Sternrassler/swapi-ingest/pkg/cache"
	"github.com/Sternrassler/swapi-ingest/pkg/logging"
	"github.com/Sternrassler/swapi-ingest/pkg/pipeline"
	"github.com/Sternrassler/swapi-ingest/pkg/runlock"
	"github.com/Sternrassler/swapi-ingest/pkg/snapshot"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob/badgerblob"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob/gcsblob"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/postgres"
	"github.com/redis/go-redis/v9"
)

// lockTTL bounds how long a crashed run can block the next one.
const lockTTL = 2 * time.Minute

// deps holds the connections a command opened. Close releases them in
// reverse order.
type deps struct {
	db    *postgres.Store
	blobs blob.Store
	redis *redis.Client
}

// openDeps opens the blob store, redis when configured, and the database
// when withDB is set.
func openDeps(ctx context.Context, cfg config.Config, withDB bool) (*deps, error) {
	d := &deps{}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.blobs = blobs

	if cfg.RedisAddr != "" {
		rdb, err := openRedis(ctx, cfg.RedisAddr)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.redis = rdb
	}

	if withDB {
		db, err := openStore(ctx, cfg)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.db = db
	}
	return d, nil
}

// orchestrator builds a pipeline over the opened dependencies. Without a
// database every run fails at session open.
func (d *deps) orchestrator(cfg config.Config) (*pipeline.Orchestrator, error) {
	open := func(ctx context.Context) (pipeline.Session, error) {
		if d.db == nil {
			return nil, errNoStore
		}
		sess, err := d.db.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	writer := snapshot.NewWriter(d.blobs,
		snapshot.WithPrefix(cfg.SnapshotPrefix),
		snapshot.WithLogger(logging.NewLogger("snapshot")),
	)

	opts := []pipeline.Option{pipeline.WithLogger(logging.NewLogger("pipeline"))}
	if d.redis != nil {
		opts = append(opts,
			pipeline.WithCache(cache.NewManager(d.redis)),
			pipeline.WithLocker(runlock.NewLocker(d.redis, runlock.DefaultKey, lockTTL, logging.NewLogger("runlock"))),
		)
	}
	return pipeline.New(cfg.Pipeline(userAgent()), open, writer, opts...)
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		d.redis.Close()
	}
	if d.blobs != nil {
		d.blobs.Close()
	}
}

func openStore(ctx context.Context, cfg config.Config) (*postgres.Store, error) {
	db, err := postgres.Open(ctx, cfg.DatabaseDSN, postgres.WithLogger(logging.NewLogger("postgres")))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case config.BackendGCS:
		s, err := gcsblob.Open(ctx, gcsblob.Config{
			Bucket:          cfg.Bucket,
			ProjectID:       cfg.GCSProjectID,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("open gcs bucket %s: %w", cfg.Bucket, err)
		}
		return s, nil
	default:
		s, err := badgerblob.Open(cfg.BlobPath, cfg.Bucket, false, logging.NewLogger("badger"))
		if err != nil {
			return nil, fmt.Errorf("open snapshot store at %s: %w", cfg.BlobPath, err)
		}
		return s, nil
	}
}

func openRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	logger := logging.NewLogger("redis")
	logger.Info().Str("addr", addr).Msg("Connected to Redis")
	return rdb, nil
}
