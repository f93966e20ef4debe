package storage

import (
	"context"
	"errors"
	"fmt"

	"filmreview/internal/domain/reviews"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
)

type Container struct {
	Reviews reviews.Store

	withTx func(ctx context.Context, fn func(reviews.Store) error) error
	ping   func(ctx context.Context) error
	stats  func() any
	close  func()
}

// NewContainer wires the Postgres repositories.
func NewContainer(pool *pgxpool.Pool) *Container {
	return &Container{
		Reviews: reviews.NewRepository(pool),
		withTx: func(ctx context.Context, fn func(reviews.Store) error) error {
			// Serializable so a load read and the insert that depends on it
			// commit together or not at all.
			tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return classifyPg("begin tx", err)
			}
			defer func() {
				_ = tx.Rollback(ctx) // safe even if already committed
			}()

			if err := fn(reviews.NewRepository(tx)); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return classifyPg("commit tx", err)
			}
			return nil
		},
		ping: pool.Ping,
		stats: func() any {
			st := pool.Stat()
			return map[string]any{
				"driver":         "postgres",
				"total_conns":    st.TotalConns(),
				"idle_conns":     st.IdleConns(),
				"acquired_conns": st.AcquiredConns(),
				"max_conns":      st.MaxConns(),
			}
		},
		close: pool.Close,
	}
}

// NewSQLiteContainer wires the embedded SQLite repositories.
func NewSQLiteContainer(db *sqlx.DB) *Container {
	return &Container{
		Reviews: reviews.NewSQLiteRepository(db),
		withTx: func(ctx context.Context, fn func(reviews.Store) error) error {
			tx, err := db.BeginTxx(ctx, nil)
			if err != nil {
				return classifySQLite("begin tx", err)
			}
			defer func() {
				_ = tx.Rollback()
			}()

			if err := fn(reviews.NewSQLiteRepository(tx)); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return classifySQLite("commit tx", err)
			}
			return nil
		},
		ping:  db.PingContext,
		stats: func() any { return db.Stats() },
		close: func() { _ = db.Close() },
	}
}

// WithReviewsTx runs fn against a transaction-scoped review store. fn's error
// aborts the transaction and is returned unchanged.
func (c *Container) WithReviewsTx(ctx context.Context, fn func(reviews.Store) error) error {
	if c.withTx == nil {
		return fmt.Errorf("storage container has no transaction support (did you build it with NewContainer?)")
	}
	return c.withTx(ctx, fn)
}

func (c *Container) Ping(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Stats reports connection pool statistics for the metrics endpoint.
func (c *Container) Stats() any {
	if c.stats == nil {
		return nil
	}
	return c.stats()
}

func (c *Container) Close() {
	if c.close != nil {
		c.close()
	}
}

func classifyPg(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return &reviews.DataAccessError{Op: op, Err: fmt.Errorf("%w: %w", reviews.ErrRetryable, err)}
	}
	return &reviews.DataAccessError{Op: op, Err: err}
}

func classifySQLite(op string, err error) error {
	if reviews.IsRetryableSQLiteError(err) {
		return &reviews.DataAccessError{Op: op, Err: fmt.Errorf("%w: %w", reviews.ErrRetryable, err)}
	}
	return &reviews.DataAccessError{Op: op, Err: err}
}
