package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/cache"
	"github.com/Sternrassler/swapi-ingest/pkg/client"
	"github.com/Sternrassler/swapi-ingest/pkg/pagination"
	"github.com/Sternrassler/swapi-ingest/pkg/planet"
	"github.com/Sternrassler/swapi-ingest/pkg/ratelimit"
	"github.com/Sternrassler/swapi-ingest/pkg/snapshot"
	"github.com/Sternrassler/swapi-ingest/pkg/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for ingestion runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_runs_total",
		Help: "Ingestion runs by final status",
	}, []string{"status"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_items_total",
		Help: "Listed items by processing outcome",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_run_duration_seconds",
		Help:    "Ingestion run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})
)

// Constructor errors.
var (
	ErrSessionRequired   = errors.New("session opener is required")
	ErrSnapshotsRequired = errors.New("snapshot writer is required")
	ErrBaseURLRequired   = errors.New("base url is required")
)

// Session is one run's store session. *postgres.Session implements it.
type Session interface {
	// Upsert creates or updates p by name in the open batch. Errors that
	// are not *storage.StorageUnavailableError concern p alone.
	Upsert(ctx context.Context, p *planet.Planet) (created bool, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// SessionOpener opens the store session for a run.
type SessionOpener func(ctx context.Context) (Session, error)

// SnapshotWriter stores raw documents. *snapshot.Writer implements it.
type SnapshotWriter interface {
	Write(ctx context.Context, doc any) (*snapshot.Snapshot, error)
}

// RunLocker guards against overlapping runs. *runlock.Locker implements it.
type RunLocker interface {
	Lock(ctx context.Context) (release func(context.Context) error, err error)
}

// Config holds orchestrator configuration.
type Config struct {
	// BaseURL is the listing endpoint.
	BaseURL string

	Pagination pagination.Config

	// MaxItems caps the items attempted per run. 0 means no cap.
	MaxItems int

	// CommitEvery is the number of upserts per committed batch.
	CommitEvery int

	// RateInterval is the minimum spacing between outbound requests.
	RateInterval time.Duration

	// Client configures the per-run fetch client.
	Client client.Config
}

// DefaultConfig returns the default run configuration for baseURL.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:      baseURL,
		Pagination:   pagination.DefaultConfig(),
		MaxItems:     10,
		CommitEvery:  10,
		RateInterval: time.Second,
		Client:       client.DefaultConfig(userAgent),
	}
}

// Orchestrator composes fetch, pagination, normalization, snapshotting and
// upserts into ingestion runs. Runs are independent; each gets its own
// client, limiter and store session.
type Orchestrator struct {
	config      Config
	openSession SessionOpener
	snapshots   SnapshotWriter
	cache       *cache.Manager
	locker      RunLocker
	logger      zerolog.Logger
	now         func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables conditional requests for every run.
func WithCache(m *cache.Manager) Option {
	return func(o *Orchestrator) { o.cache = m }
}

// WithLocker makes runs fail fast while another run holds the lock.
func WithLocker(l RunLocker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithClock overrides the clock used for summary timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(cfg Config, open SessionOpener, snapshots SnapshotWriter, opts ...Option) (*Orchestrator, error) {
	if open == nil {
		return nil, ErrSessionRequired
	}
	if snapshots == nil {
		return nil, ErrSnapshotsRequired
	}
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if cfg.CommitEvery <= 0 {
		cfg.CommitEvery = 10
	}
	if cfg.MaxItems < 0 {
		return nil, fmt.Errorf("max items must be >= 0 (got %d)", cfg.MaxItems)
	}

	o := &Orchestrator{
		config:      cfg,
		openSession: open,
		snapshots:   snapshots,
		logger:      log.With().Str("component", "pipeline").Logger(),
		now:         time.Now,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns the state of the current (or last) run.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State, logger zerolog.Logger) {
	o.mu.Lock()
	prev := o.state
	o.state = s
	o.mu.Unlock()

	logger.Info().Str("from", string(prev)).Str("state", string(s)).Msg("Run state changed")
}

// newClient builds the per-run fetch client and its limiter.
func (o *Orchestrator) newClient(logger zerolog.Logger) (*client.Client, error) {
	limiter, err := ratelimit.New(o.config.RateInterval, logger.With().Str("component", "ratelimit").Logger())
	if err != nil {
		return nil, err
	}
	opts := []client.Option{
		client.WithLimiter(limiter),
		client.WithLogger(logger.With().Str("component", "fetch-client").Logger()),
	}
	if o.cache != nil {
		opts = append(opts, client.WithCache(o.cache))
	}
	return client.New(o.config.Client, opts...)
}

// Run executes one ingestion run. The summary is always returned; err is
// non-nil exactly when the run ended in StateFailed.
func (o *Orchestrator) Run(ctx context.Context) (summary *RunSummary, err error) {
	start := o.now()
	summary = &RunSummary{
		RunID:     uuid.New().String(),
		Timestamp: start.UTC(),
	}
	logger := o.logger.With().Str("run_id", summary.RunID).Logger()

	r := &run{o: o, summary: summary, logger: logger}
	defer func() {
		summary.Duration = o.now().Sub(start)
		runDuration.Observe(summary.Duration.Seconds())
		runsTotal.WithLabelValues(string(summary.Status)).Inc()
	}()

	if o.locker != nil {
		release, err := o.locker.Lock(ctx)
		if err != nil {
			return summary, r.fail(fmt.Errorf("acquire run lock: %w", err))
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Failed to release run lock")
			}
		}()
	}

	fetcher, err := o.newClient(logger)
	if err != nil {
		return summary, r.fail(fmt.Errorf("create fetch client: %w", err))
	}
	defer fetcher.Close()

	sess, err := o.openSession(ctx)
	if err != nil {
		return summary, r.fail(fmt.Errorf("open store session: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close store session")
		}
	}()

	r.fetcher = fetcher
	r.sess = sess
	return summary, r.execute(ctx)
}

// run carries the state of a single Run call.
type run struct {
	o       *Orchestrator
	summary *RunSummary
	logger  zerolog.Logger
	fetcher *client.Client
	sess    Session
	pending int
}

func (r *run) execute(ctx context.Context) error {
	o, summary := r.o, r.summary

	o.setState(StateFetchingIndex, r.logger)
	pager := pagination.New(r.fetcher, o.config.Pagination, r.logger.With().Str("component", "paginator").Logger())
	idx, err := pager.FetchIndex(ctx, o.config.BaseURL)
	if err != nil {
		return r.fail(err)
	}
	summary.Pages = idx.Pages

	snap, err := o.snapshots.Write(ctx, idx.Document)
	if err != nil {
		return r.fail(fmt.Errorf("snapshot index: %w", err))
	}
	summary.Snapshot = snap.Filename

	o.setState(StatePaginating, r.logger)
	var refs []pagination.ItemRef
	for ref, err := range pager.Items(ctx, idx) {
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx.Err())
			}
			summary.FailedPages++
			r.logger.Warn().Err(err).Int("page", ref.Page).Msg("Skipping unreadable page")
			continue
		}
		refs = append(refs, ref)
	}
	summary.DiscoveredCount = len(refs)
	r.logger.Info().
		Int("items", len(refs)).
		Int("pages", idx.Pages).
		Int("failed_pages", summary.FailedPages).
		Msg("Listing collected")

	o.setState(StateProcessing, r.logger)
	normalizer := planet.NewNormalizer(r.fetcher, r.logger.With().Str("component", "normalizer").Logger())
	for _, ref := range refs {
		if o.config.MaxItems > 0 && summary.AttemptedCount >= o.config.MaxItems {
			r.logger.Info().Int("max_items", o.config.MaxItems).Msg("Item cap reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}
		if err := r.process(ctx, normalizer, ref); err != nil {
			return r.fail(err)
		}
	}

	if err := r.commit(ctx); err != nil {
		return r.fail(err)
	}

	o.setState(StateDone, r.logger)
	summary.Status = StatusSuccess
	if summary.FailedCount > 0 {
		summary.Status = StatusPartial
	}
	r.logger.Info().
		Str("status", string(summary.Status)).
		Int("processed", summary.ProcessedCount).
		Int("attempted", summary.AttemptedCount).
		Int("skipped", summary.SkippedCount).
		Int("failed", summary.FailedCount).
		Msg("Run finished")
	return nil
}

// process handles one item. Only run-level errors are returned.
func (r *run) process(ctx context.Context, normalizer *planet.Normalizer, ref pagination.ItemRef) error {
	summary := r.summary
	summary.AttemptedCount++
	logger := r.logger.With().Str("url", ref.URL).Str("name", ref.Name).Logger()

	p, err := normalizer.Normalize(ctx, ref)
	switch {
	case errors.Is(err, planet.ErrSkip):
		summary.SkippedCount++
		itemsTotal.WithLabelValues("skipped").Inc()
		return nil
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary.FailedCount++
		itemsTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("Item failed")
		return nil
	}

	created, err := r.sess.Upsert(ctx, p)
	if err != nil {
		if storage.IsUnavailable(err) || ctx.Err() != nil {
			return fmt.Errorf("upsert %q: %w", p.Name, err)
		}
		summary.FailedCount++
		itemsTotal.WithLabelValues("failed").Inc()
		logger.Warn().Err(err).Msg("Upsert rejected")
		return nil
	}

	summary.ProcessedCount++
	if created {
		summary.CreatedCount++
	} else {
		summary.UpdatedCount++
	}
	itemsTotal.WithLabelValues("processed").Inc()

	r.pending++
	if r.pending >= r.o.config.CommitEvery {
		if err := r.commit(ctx); err != nil {
			return err
		}
		r.o.setState(StateProcessing, r.logger)
	}
	return nil
}

func (r *run) commit(ctx context.Context) error {
	r.o.setState(StateCommitting, r.logger)
	if err := r.sess.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	r.logger.Debug().Int("rows", r.pending).Msg("Batch committed")
	r.pending = 0
	return nil
}

// fail moves the run to StateFailed. The open batch, if any, is rolled
// back; committed batches are kept.
func (r *run) fail(err error) error {
	if r.sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if rbErr := r.sess.Rollback(ctx); rbErr != nil {
			r.logger.Warn().Err(rbErr).Msg("Failed to roll back batch")
		}
		cancel()
	}

	r.o.setState(StateFailed, r.logger)
	r.summary.Status = StatusFailure
	r.summary.Error = err.Error()
	r.logger.Error().Err(err).Msg("Run failed")
	return err
}
