package db

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register postgres dialect
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect builds parameterised PostgreSQL statements.
var Dialect = goqu.Dialect("postgres")

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SQLBuilder is implemented by goqu datasets.
type SQLBuilder interface {
	ToSQL() (string, []any, error)
}

// Exec renders and executes a built statement.
func Exec(ctx context.Context, q Querier, b SQLBuilder) (pgconn.CommandTag, error) {
	sql, args, err := b.ToSQL()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return q.Exec(ctx, sql, args...)
}

// Query renders and runs a built query.
func Query(ctx context.Context, q Querier, b SQLBuilder) (pgx.Rows, error) {
	sql, args, err := b.ToSQL()
	if err != nil {
		return nil, err
	}
	return q.Query(ctx, sql, args...)
}
