package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/database"
	"github.com/atelierhq/atelier-auction-backend/internal/service/bidding"
)

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same methods can run against the pool or inside an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds every read and conditional update. Embedded by Store (over
// the pool) and TxQueries (over a transaction).
type queries struct {
	db querier
}

// Store is the PostgreSQL persistence layer. Pool-level methods serve plain
// reads and marketplace writes; InSerializableTx is the transactional surface
// the bidding and settlement engines run on.
type Store struct {
	queries
	pool *database.ConnectionPool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *database.ConnectionPool) *Store {
	return &Store{
		queries: queries{db: pool.Pool()},
		pool:    pool,
	}
}

// TxQueries is the query surface bound to one open transaction.
type TxQueries struct {
	queries
}

// InSerializableTx runs fn inside a serializable transaction, retrying on
// serialization failures. Every call made through the handle passed to fn
// shares that transaction.
func (s *Store) InSerializableTx(ctx context.Context, fn func(bidding.TxStore) error) error {
	return s.pool.InSerializableTx(ctx, func(tx pgx.Tx) error {
		return fn(&TxQueries{queries{db: tx}})
	})
}
