package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPostgres connects a pgx pool to databaseURL and verifies it with a
// ping.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewPostgres(pool, logger), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return newStore(Postgres, &pgDB{pool: pool}, logger)
}

type pgDB struct {
	pool *pgxpool.Pool
}

func (db *pgDB) begin(ctx context.Context, readOnly bool) (conn, error) {
	c, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	if readOnly {
		opts = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}
	t, err := c.BeginTx(ctx, opts)
	if err != nil {
		c.Release()
		return nil, err
	}
	return &pgConn{conn: c, tx: t}, nil
}

func (db *pgDB) close() {
	db.pool.Close()
}

// pgConn holds the acquired connection until the transaction ends.
type pgConn struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

func (c *pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) query(ctx context.Context, query string, args ...any) (rows, error) {
	return c.tx.Query(ctx, query, args...)
}

func (c *pgConn) queryRow(ctx context.Context, query string, args ...any) row {
	return c.tx.QueryRow(ctx, query, args...)
}

func (c *pgConn) commit(ctx context.Context) error {
	defer c.release()
	return c.tx.Commit(ctx)
}

func (c *pgConn) rollback(ctx context.Context) error {
	defer c.release()
	err := c.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (c *pgConn) release() {
	if c.conn != nil {
		c.conn.Release()
		c.conn = nil
	}
}
