// Package gcsblob is a blob store on Google Cloud Storage.
package gcsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	swstorage "github.com/Sternrassler/swapi-ingest/pkg/storage"
	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob"
)

const backend = "gcs"

// Config selects the bucket and credentials.
type Config struct {
	Bucket    string
	ProjectID string

	// CredentialsFile is a service account key. Empty uses application
	// default credentials.
	CredentialsFile string
}

// Store is one GCS bucket.
type Store struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	projectID string
}

var _ blob.Store = (*Store)(nil)

// Open creates a client for cfg.Bucket. STORAGE_EMULATOR_HOST is honored
// by the underlying client.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, swstorage.Unavailable(backend, "connect", err)
	}
	return &Store{
		client:    client,
		bucket:    client.Bucket(cfg.Bucket),
		projectID: cfg.ProjectID,
	}, nil
}

// Exists reports whether the bucket exists.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	_, err := s.bucket.Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return false, nil
	}
	if err != nil {
		return false, swstorage.Unavailable(backend, "bucket attrs", err)
	}
	return true, nil
}

// Create creates the bucket in the configured project.
func (s *Store) Create(ctx context.Context) error {
	if s.projectID == "" {
		return swstorage.Unavailable(backend, "create bucket", errors.New("project id is required to create a bucket"))
	}
	if err := s.bucket.Create(ctx, s.projectID, nil); err != nil {
		return swstorage.Unavailable(backend, "create bucket", err)
	}
	return nil
}

// Put uploads a new object. The write is conditional on the object not
// existing, so a taken name yields blob.ErrObjectExists.
func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) error {
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		w.Close()
		return mapWriteError(name, err)
	}
	if err := w.Close(); err != nil {
		return mapWriteError(name, err)
	}
	return nil
}

// Get downloads an object.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", name, swstorage.ErrNotFound)
	}
	if err != nil {
		return nil, swstorage.Unavailable(backend, "get", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, swstorage.Unavailable(backend, "get", err)
	}
	return data, nil
}

// List returns every object in name order.
func (s *Store) List(ctx context.Context) ([]blob.ObjectInfo, error) {
	var out []blob.ObjectInfo

	it := s.bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, swstorage.Unavailable(backend, "list", err)
		}
		out = append(out, blob.ObjectInfo{
			Name:        attrs.Name,
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			CreatedAt:   attrs.Created,
		})
	}
	return out, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func mapWriteError(name string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusPreconditionFailed:
			return fmt.Errorf("%s: %w", name, blob.ErrObjectExists)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", name, blob.ErrBucketNotFound)
		}
	}
	return swstorage.Unavailable(backend, "put", err)
}
