package db

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier represents the set of persistence methods. It is satisfied by the pool and by pgx.Tx,
// so repositories can run inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// InTx runs f inside a transaction, committing when f returns nil
func (s *Storage) InTx(ctx context.Context, f func(tx Querier) error) error {
	return s.Pgx.BeginFunc(ctx, func(tx pgx.Tx) error {
		return f(tx)
	})
}
