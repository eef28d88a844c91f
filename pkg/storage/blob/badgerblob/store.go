// Package badgerblob is a local blob store on BadgerDB.
package badgerblob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/storage"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/rs/zerolog"
)

const backend = "badger"

// Key prefixes
const (
	bucketPrefix = "bkt"
	metaPrefix   = "objm"
	dataPrefix   = "objd"
)

func bucketKey(bucket string) []byte {
	return []byte(fmt.Sprintf("%s:%s", bucketPrefix, bucket))
}

func metaKey(bucket, name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", metaPrefix, bucket, name))
}

func metaScanPrefix(bucket string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", metaPrefix, bucket))
}

func dataKey(bucket, name string) []byte {
	return []byte(fmt.Sprintf("%s:%s:%s", dataPrefix, bucket, name))
}

type objectMeta struct {
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is one bucket inside a BadgerDB database.
type Store struct {
	db     *badger.DB
	bucket string
	now    func() time.Time
}

var _ blob.Store = (*Store)(nil)

// zerologAdapter adapts zerolog.Logger to the badger.Logger interface.
type zerologAdapter struct {
	logger zerolog.Logger
}

var _ badger.Logger = (*zerologAdapter)(nil)

func (a *zerologAdapter) Errorf(msg string, items ...any) {
	a.logger.Error().Msgf(msg, items...)
}

func (a *zerologAdapter) Warningf(msg string, items ...any) {
	a.logger.Warn().Msgf(msg, items...)
}

func (a *zerologAdapter) Infof(msg string, items ...any) {
	a.logger.Debug().Msgf(msg, items...)
}

func (a *zerologAdapter) Debugf(msg string, items ...any) {
	a.logger.Trace().Msgf(msg, items...)
}

// Open opens (or creates) the database at path and scopes it to bucket.
// With inMemory set, path is ignored and nothing touches disk.
func Open(path, bucket string, inMemory bool, logger zerolog.Logger) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, storage.Unavailable(backend, "open", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = &zerologAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.Unavailable(backend, "open", err)
	}

	return &Store{db: db, bucket: bucket, now: time.Now}, nil
}

// Exists reports whether the bucket has been created.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(bucketKey(s.bucket))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, storage.Unavailable(backend, "exists", err)
	}
	return found, nil
}

// Create marks the bucket as existing.
func (s *Store) Create(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bucketKey(s.bucket), []byte(s.now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return storage.Unavailable(backend, "create bucket", err)
	}
	return nil
}

// Put writes a new object; an existing name yields blob.ErrObjectExists.
func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	meta, err := json.Marshal(objectMeta{
		Size:        int64(len(data)),
		ContentType: contentType,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal object meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(bucketKey(s.bucket)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return blob.ErrBucketNotFound
			}
			return err
		}
		if _, err := txn.Get(metaKey(s.bucket, name)); err == nil {
			return blob.ErrObjectExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(dataKey(s.bucket, name), data); err != nil {
			return err
		}
		return txn.Set(metaKey(s.bucket, name), meta)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, blob.ErrObjectExists), errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%s: %w", name, blob.ErrObjectExists)
	case errors.Is(err, blob.ErrBucketNotFound):
		return fmt.Errorf("%s: %w", s.bucket, err)
	default:
		return storage.Unavailable(backend, "put", err)
	}
}

// Get returns the content of name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(s.bucket, name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, storage.Unavailable(backend, "get", err)
	}
	return data, nil
}

// List returns every object in the bucket in name order.
func (s *Store) List(ctx context.Context) ([]blob.ObjectInfo, error) {
	prefix := metaScanPrefix(s.bucket)

	var out []blob.ObjectInfo
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var meta objectMeta
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &meta)
			}); err != nil {
				return err
			}
			out = append(out, blob.ObjectInfo{
				Name:        string(item.Key()[len(prefix):]),
				Size:        meta.Size,
				ContentType: meta.ContentType,
				CreatedAt:   meta.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storage.Unavailable(backend, "list", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
