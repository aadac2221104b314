// Package store persists the general ledger in PostgreSQL or SQLite.
//
// Both backends share one set of SQL statements written with ? placeholders;
// the dialect rebinds them for PostgreSQL and converts the few types the two
// engines store differently.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/gl-core/internal/ledger"
)

const (
	maxRetries   = 3
	writeTimeout = 5 * time.Second
	readTimeout  = 30 * time.Second
)

// rows is the subset of pgx.Rows and *sql.Rows the store uses.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

// conn is an open database transaction.
type conn interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	query(ctx context.Context, query string, args ...any) (rows, error)
	queryRow(ctx context.Context, query string, args ...any) row
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

type beginner interface {
	begin(ctx context.Context, readOnly bool) (conn, error)
	close()
}

// Store implements ledger.Store.
type Store struct {
	dialect Dialect
	db      beginner
	logger  *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

func newStore(d Dialect, db beginner, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dialect: d, db: db, logger: logger}
}

// Dialect reports which engine backs the store.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the underlying connections.
func (s *Store) Close() {
	s.db.close()
}

// Open connects to the engine named by d. For SQLite the url is a file path
// and may be empty.
func Open(ctx context.Context, d Dialect, url string, logger *slog.Logger) (*Store, error) {
	switch d {
	case Postgres:
		return OpenPostgres(ctx, url, logger)
	case SQLite:
		return OpenSQLite(url, logger)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", d)
	}
}

// Ping checks that the database answers a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	return s.run(ctx, true, readTimeout, func(t *tx) error {
		var one int
		return t.queryRow(ctx, "SELECT 1").Scan(&one)
	})
}

// InTx runs fn in a serializable transaction, retrying serialization
// failures with a short linear backoff.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = s.run(ctx, false, writeTimeout, func(t *tx) error { return fn(t) })
		if err == nil || !s.dialect.isRetryable(err) {
			return err
		}
		s.logger.Warn("tx_retry", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		if attempt == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("transaction failed after %d retries due to serialization failure: %w: %w", maxRetries, ledger.ErrContention, err)
}

// ReadTx runs fn in a read-only transaction.
func (s *Store) ReadTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.run(ctx, true, readTimeout, func(t *tx) error { return fn(t) })
}

func (s *Store) run(ctx context.Context, readOnly bool, timeout time.Duration, fn func(t *tx) error) error {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := s.db.begin(queryCtx, readOnly)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = c.rollback(queryCtx)
		}
	}()

	if err := fn(&tx{dialect: s.dialect, c: c}); err != nil {
		return err
	}
	if err := c.commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// tx implements ledger.Tx over one open conn.
type tx struct {
	dialect Dialect
	c       conn
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.c.exec(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...any) (rows, error) {
	return t.c.query(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) row {
	return t.c.queryRow(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := t.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
