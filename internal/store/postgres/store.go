// Package postgres implements store.Store on a pgx pool.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/educatory/backend/internal/domain"
	"github.com/educatory/backend/internal/store"
)

const uniqueViolation = "23505"

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs queries against the pool and opens transactions on demand.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

// New creates a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// InTx runs fn inside a read-committed transaction. Row locks taken with
// FOR UPDATE and the sequences table provide the required serialization.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
	return mapErr(err)
}

type queries struct {
	db dbtx
}

// NextSequence increments the named counter in place.
func (q *queries) NextSequence(ctx context.Context, name string) (int64, error) {
	const query = `INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1, updated_at = NOW()
		RETURNING value`
	var v int64
	if err := q.db.QueryRow(ctx, query, name).Scan(&v); err != nil {
		return 0, mapErr(err)
	}
	return v, nil
}

// mapErr turns unique violations into domain constraint errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ConstraintViolation(pgErr.ConstraintName, err)
	}
	return err
}

// noRows reports whether err is pgx.ErrNoRows.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var _ store.Store = (*Store)(nil)
