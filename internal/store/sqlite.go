package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens a SQLite database at path. An empty path opens a private
// in-memory database, which is what tests and the CLI's scratch mode use.
func OpenSQLite(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	if path == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.New().String())
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection serializes every
	// transaction and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return newStore(SQLite, &sqlDB{db: db}, logger), nil
}

type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) begin(ctx context.Context, _ bool) (conn, error) {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlConn{tx: t}, nil
}

func (s *sqlDB) close() {
	_ = s.db.Close()
}

type sqlConn struct {
	tx *sql.Tx
}

func (c *sqlConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqlConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := c.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{r}, nil
}

func (c *sqlConn) queryRow(ctx context.Context, query string, args ...any) row {
	return c.tx.QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) commit(context.Context) error {
	return c.tx.Commit()
}

func (c *sqlConn) rollback(context.Context) error {
	return c.tx.Rollback()
}

// sqlRows adapts *sql.Rows to the pgx-style Close.
type sqlRows struct {
	r *sql.Rows
}

func (s sqlRows) Next() bool             { return s.r.Next() }
func (s sqlRows) Scan(dest ...any) error { return s.r.Scan(dest...) }
func (s sqlRows) Err() error             { return s.r.Err() }
func (s sqlRows) Close()                 { _ = s.r.Close() }
