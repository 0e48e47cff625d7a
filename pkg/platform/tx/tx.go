// Package tx carries an open *sql.Tx through a context so SQL stores can join
// the caller's transaction without widening their method signatures.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

var txKey = ctxKey{}

// Querier is the subset shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// QuerierFrom returns the transaction in ctx, or db when none is open.
func QuerierFrom(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

type lockKeysKey struct{}

// WithLockKeys records the advisory lock keys the transaction runner should
// take before running the unit of work. Keys are used as given; callers sort
// them so every runner acquires locks in the same global order.
func WithLockKeys(ctx context.Context, keys []string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	return context.WithValue(ctx, lockKeysKey{}, keys)
}

// LockKeys returns the lock keys recorded by WithLockKeys.
func LockKeys(ctx context.Context) []string {
	keys, _ := ctx.Value(lockKeysKey{}).([]string)
	return keys
}
