package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXDB is an interface that both pgxpool.Pool and pgx.Tx implement.
// This allows repositories to work with either a connection pool or a transaction,
// which is essential for testing with transaction-based isolation.
type PGXDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner can start a database transaction. Implemented by pgxpool.Pool
// and by pgx.Tx (as a savepoint-backed nested transaction).
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB combines querying with the ability to open transactions. Services that
// run multi-statement wallet mutations take this interface so tests can hand
// them a rolled-back transaction instead of the pool.
type DB interface {
	PGXDB
	TxBeginner
}

// Ensure types implement the interfaces at compile time.
var (
	_ PGXDB      = (*pgxpool.Pool)(nil)
	_ PGXDB      = (pgx.Tx)(nil)
	_ TxBeginner = (*pgxpool.Pool)(nil)
	_ DB         = (*pgxpool.Pool)(nil)
	_ DB         = (pgx.Tx)(nil)
)
