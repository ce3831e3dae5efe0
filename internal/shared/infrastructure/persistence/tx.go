// Package persistence carries the transaction through the context so
// command handlers stay free of database handles. The unit of work stores
// the open transaction under a private key; repositories pick it up and
// fall back to the bare pool or connection when no transaction is open.
package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoActiveTx reports a Commit or Rollback without a surrounding Begin.
var ErrNoActiveTx = errors.New("no transaction in context")

// DBExecutor is the query surface pgxpool.Pool and pgx.Tx have in common,
// letting repository code run the same statements in and out of a
// transaction.
type DBExecutor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor resolves where a Postgres repository should run its statements:
// the context's transaction when one is open, the pool otherwise.
func Executor(ctx context.Context, pool *pgxpool.Pool) DBExecutor {
	if info, ok := TxInfoFromContext(ctx); ok {
		return info.Tx
	}
	return pool
}

type txKey struct{}

// TxInfo is an open Postgres transaction plus whether the holder of this
// context started it. Joined (nested) scopes carry Owned=false so only the
// outermost scope commits.
type TxInfo struct {
	Tx    pgx.Tx
	Owned bool
}

// WithTx stores an open transaction in the context.
func WithTx(ctx context.Context, tx pgx.Tx, owned bool) context.Context {
	return context.WithValue(ctx, txKey{}, TxInfo{Tx: tx, Owned: owned})
}

// TxInfoFromContext reports the context's open transaction, if any.
func TxInfoFromContext(ctx context.Context) (TxInfo, bool) {
	info, ok := ctx.Value(txKey{}).(TxInfo)
	if !ok || info.Tx == nil {
		return TxInfo{}, false
	}
	return info, true
}
