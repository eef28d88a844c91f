package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-ingest/pkg/planet"
	"github.com/Sternrassler/swapi-ingest/pkg/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Session is one run's database session: a dedicated connection and the
// currently open batch transaction, if any. It is not safe for concurrent use.
type Session struct {
	conn   *pgxpool.Conn
	tx     pgx.Tx
	now    func() time.Time
	logger zerolog.Logger

	pending int
}

// Upsert creates or updates p by name inside the current batch, beginning
// one if needed. On success p carries the stored ID and timestamps.
//
// Each upsert runs in its own savepoint so a rejected row leaves the rest of
// the batch intact. Such item errors are returned as plain errors; failures
// of the session itself are *storage.StorageUnavailableError.
func (s *Session) Upsert(ctx context.Context, p *planet.Planet) (created bool, err error) {
	if s.tx == nil {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return false, storage.Unavailable(backend, "begin", err)
		}
		s.tx = tx
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return false, storage.Unavailable(backend, "savepoint", err)
	}

	args := make([]any, 0, len(planet.Fields)+1)
	for _, v := range p.Values() {
		args = append(args, v)
	}
	args = append(args, s.now().UTC())

	var inserted bool
	err = sp.QueryRow(ctx, upsertSQL, args...).Scan(&p.ID, &p.Created, &p.Updated, &inserted)
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return false, storage.Unavailable(backend, "rollback savepoint", errors.Join(err, rbErr))
		}
		if !isItemError(err) {
			return false, storage.Unavailable(backend, "upsert", err)
		}
		return false, fmt.Errorf("upsert planet %q: %w", p.Name, err)
	}
	if err := sp.Commit(ctx); err != nil {
		return false, storage.Unavailable(backend, "release savepoint", err)
	}

	s.pending++
	s.logger.Debug().Str("name", p.Name).Bool("created", inserted).Msg("Planet upserted")
	return inserted, nil
}

// Commit commits the current batch. It is a no-op when no batch is open.
func (s *Session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx, n := s.tx, s.pending
	s.tx, s.pending = nil, 0

	if err := tx.Commit(ctx); err != nil {
		return storage.Unavailable(backend, "commit", err)
	}
	s.logger.Debug().Int("rows", n).Msg("Batch committed")
	return nil
}

// Rollback discards the current batch. Earlier commits are unaffected.
func (s *Session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx, n := s.tx, s.pending
	s.tx, s.pending = nil, 0

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return storage.Unavailable(backend, "rollback", err)
	}
	s.logger.Warn().Int("rows", n).Msg("Batch rolled back")
	return nil
}

// Pending returns the number of upserts in the open batch.
func (s *Session) Pending() int {
	return s.pending
}

// Close rolls back any open batch and returns the connection to the pool.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Rollback(ctx)
	s.conn.Release()
	s.conn = nil
	return err
}

// isItemError reports whether err was raised by the server for this row
// rather than by the connection or server state. Only data exceptions
// (class 22) and integrity violations (class 23) qualify.
func isItemError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	switch pgErr.Code[:2] {
	case "22", "23":
		return true
	default:
		return false
	}
}
