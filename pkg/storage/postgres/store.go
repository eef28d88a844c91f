// Package postgres stores Planets in PostgreSQL with idempotent upserts
// keyed by name.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/planet"
	"github.com/Sternrassler/swapi-ingest/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const backend = "postgres"

const schema = `
CREATE TABLE IF NOT EXISTS planets (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  rotation_period TEXT NOT NULL DEFAULT '',
  orbital_period TEXT NOT NULL DEFAULT '',
  diameter TEXT NOT NULL DEFAULT '',
  climate TEXT NOT NULL DEFAULT '',
  gravity TEXT NOT NULL DEFAULT '',
  terrain TEXT NOT NULL DEFAULT '',
  surface_water TEXT NOT NULL DEFAULT '',
  population TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  created TIMESTAMPTZ NOT NULL,
  updated TIMESTAMPTZ NOT NULL
);`

var (
	upsertSQL = buildUpsert()
	selectSQL = "SELECT id, " + strings.Join(planet.Columns(), ", ") + ", created, updated FROM planets"
)

// buildUpsert renders the upsert statement from planet.Fields. The natural
// key is never updated; created is kept and updated always moves forward.
func buildUpsert() string {
	cols := planet.Columns()
	placeholders := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "name" {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	now := fmt.Sprintf("$%d", len(cols)+1)
	sets = append(sets, "updated = GREATEST(EXCLUDED.updated, planets.updated + INTERVAL '1 microsecond')")

	return fmt.Sprintf(`INSERT INTO planets (%s, created, updated)
VALUES (%s, %s, %s)
ON CONFLICT (name) DO UPDATE SET
  %s
RETURNING id, created, updated, (xmax = 0) AS inserted`,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "), now, now,
		strings.Join(sets, ",\n  "))
}

// Store owns the connection pool.
type Store struct {
	pool   *pgxpool.Pool
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storage.Unavailable(backend, "connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable(backend, "ping", err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the planets table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return storage.Unavailable(backend, "ensure schema", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storage.Unavailable(backend, "ping", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get returns the planet named name or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*planet.Planet, error) {
	row := s.pool.QueryRow(ctx, selectSQL+" WHERE name = $1", name)
	p, err := scanPlanet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("planet %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get planet %q: %w", name, err)
	}
	return p, nil
}

// List returns all planets ordered by name.
func (s *Store) List(ctx context.Context) ([]*planet.Planet, error) {
	rows, err := s.pool.Query(ctx, selectSQL+" ORDER BY name")
	if err != nil {
		return nil, storage.Unavailable(backend, "list", err)
	}
	defer rows.Close()

	var out []*planet.Planet
	for rows.Next() {
		p, err := scanPlanet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan planet: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NewSession acquires a dedicated connection for one ingestion run.
func (s *Store) NewSession(ctx context.Context) (*Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, storage.Unavailable(backend, "acquire", err)
	}
	return &Session{conn: conn, now: s.now, logger: s.logger}, nil
}

func scanPlanet(row pgx.Row) (*planet.Planet, error) {
	p := &planet.Planet{}
	vals := make([]string, len(planet.Fields))
	dest := make([]any, 0, len(vals)+3)
	dest = append(dest, &p.ID)
	for i := range vals {
		dest = append(dest, &vals[i])
	}
	dest = append(dest, &p.Created, &p.Updated)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range planet.Fields {
		f.Set(p, vals[i])
	}
	return p, nil
}
