// Package blob defines the bucket-scoped object store that snapshots are
// written to. Objects are immutable: Put never replaces an existing name.
package blob

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/storage"
)

var (
	// ErrObjectExists is returned by Put when the name is already taken.
	ErrObjectExists = errors.New("object already exists")

	// ErrBucketNotFound is returned when operating on a bucket that was never created.
	ErrBucketNotFound = errors.New("bucket not found")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name        string
	Size        int64
	ContentType string
	CreatedAt   time.Time
}

// Store is one bucket of a blob backend.
type Store interface {
	// Exists reports whether the bucket exists.
	Exists(ctx context.Context) (bool, error)

	// Create creates the bucket.
	Create(ctx context.Context) error

	// Put writes a new object. It fails with ErrObjectExists rather than
	// overwrite.
	Put(ctx context.Context, name string, data []byte, contentType string) error

	// Get returns an object's content or storage.ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns every object in name order.
	List(ctx context.Context) ([]ObjectInfo, error)

	Close() error
}

// EnsureBucket creates the bucket behind s if it does not exist yet.
// Failures are reported as *storage.StorageUnavailableError.
func EnsureBucket(ctx context.Context, s Store) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return asUnavailable("exists", err)
	}
	if ok {
		return nil
	}
	if err := s.Create(ctx); err != nil {
		return asUnavailable("create bucket", err)
	}
	return nil
}

func asUnavailable(op string, err error) error {
	if storage.IsUnavailable(err) {
		return err
	}
	return storage.Unavailable("blob", op, err)
}
