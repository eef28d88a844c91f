// Package snapshot writes raw API documents as immutable, timestamped blobs.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/storage/blob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var snapshotsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swapi_snapshots_written_total",
	Help: "Snapshot writes by outcome",
}, []string{"outcome"})

// DefaultPrefix names planet listing snapshots.
const DefaultPrefix = "swapi_planets"

// ContentType of every snapshot object.
const ContentType = "application/json"

const timestampLayout = "20060102_150405"

// ErrNoFreeName is returned when every suffix for a second is taken.
var ErrNoFreeName = errors.New("no free snapshot name")

// Snapshot describes a written (or listed) snapshot.
type Snapshot struct {
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
	Size       int64     `json:"size"`
}

// Timestamp returns the YYYYMMDD_HHMMSS token used in snapshot filenames.
func (s Snapshot) Timestamp() string {
	return s.UploadDate.UTC().Format(timestampLayout)
}

// Writer writes snapshots to a blob store.
type Writer struct {
	store     blob.Store
	prefix    string
	now       func() time.Time
	maxSuffix int
	logger    zerolog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithPrefix sets the filename prefix.
func WithPrefix(prefix string) Option {
	return func(w *Writer) { w.prefix = prefix }
}

// WithClock overrides the clock used for filenames.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates a writer over store.
func NewWriter(store blob.Store, opts ...Option) *Writer {
	w := &Writer{
		store:     store,
		prefix:    DefaultPrefix,
		now:       time.Now,
		maxSuffix: 100,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Filename returns prefix_YYYYMMDD_HHMMSS.json for t in UTC.
func Filename(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s.json", prefix, t.UTC().Format(timestampLayout))
}

// candidate returns the n-th name for base: base itself, then base_1, base_2...
// The suffix sorts after the unsuffixed name and before the next second.
func candidate(prefix string, t time.Time, n int) string {
	if n == 0 {
		return Filename(prefix, t)
	}
	return fmt.Sprintf("%s_%s_%d.json", prefix, t.UTC().Format(timestampLayout), n)
}

// Write serializes doc as indented JSON and stores it under a fresh name.
// The bucket is created on first use. Backend failures are
// *storage.StorageUnavailableError.
func (w *Writer) Write(ctx context.Context, doc any) (*Snapshot, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		snapshotsWritten.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	if err := blob.EnsureBucket(ctx, w.store); err != nil {
		snapshotsWritten.WithLabelValues("error").Inc()
		return nil, err
	}

	ts := w.now()
	for n := 0; n <= w.maxSuffix; n++ {
		name := candidate(w.prefix, ts, n)
		err := w.store.Put(ctx, name, data, ContentType)
		if errors.Is(err, blob.ErrObjectExists) {
			w.logger.Debug().Str("filename", name).Msg("Snapshot name taken, trying next suffix")
			continue
		}
		if err != nil {
			snapshotsWritten.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("write snapshot %s: %w", name, err)
		}

		snapshotsWritten.WithLabelValues("ok").Inc()
		w.logger.Info().Str("filename", name).Int("size", len(data)).Msg("Snapshot written")
		return &Snapshot{
			Filename:   name,
			UploadDate: ts.UTC(),
			Size:       int64(len(data)),
		}, nil
	}

	snapshotsWritten.WithLabelValues("error").Inc()
	return nil, fmt.Errorf("%w for %s", ErrNoFreeName, Filename(w.prefix, ts))
}

// List returns every stored snapshot in filename order, which is
// chronological.
func (w *Writer) List(ctx context.Context) ([]Snapshot, error) {
	ok, err := w.store.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Snapshot{}, nil
	}

	objs, err := w.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(objs))
	for _, o := range objs {
		out = append(out, Snapshot{
			Filename:   o.Name,
			UploadDate: o.CreatedAt,
			Size:       o.Size,
		})
	}
	return out, nil
}
