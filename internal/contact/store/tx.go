package store

import (
	"context"
	"database/sql"
	"time"

	"reconciler/internal/contact/service"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/tx"
)

// defaultTxTimeout bounds a transaction whose caller set no deadline.
const defaultTxTimeout = 5 * time.Second

func withTxTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// SQLTx runs identify transactions against a SQLStore. On PostgreSQL the
// transaction is SERIALIZABLE. Before it begins, the pinned connection takes a
// session advisory lock per key found in ctx (see tx.WithLockKeys), so the
// snapshot is taken only once competing writers on those keys have committed.
type SQLTx struct {
	store   *SQLStore
	timeout time.Duration
}

type SQLTxOption func(*SQLTx)

// WithTxTimeout overrides the default transaction timeout.
func WithTxTimeout(d time.Duration) SQLTxOption {
	return func(t *SQLTx) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func NewSQLTx(store *SQLStore, opts ...SQLTxOption) *SQLTx {
	t := &SQLTx{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *SQLTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTxTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.store.db.Conn(ctx)
	if err != nil {
		return mapDriverErr("acquire connection", err)
	}
	defer conn.Close()

	var opts *sql.TxOptions
	if t.store.dialect == DialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable}
		if keys := tx.LockKeys(ctx); len(keys) > 0 {
			defer func() {
				_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock_all()`)
			}()
			for _, key := range keys {
				if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, key); err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "timed out waiting for identifier lock")
					}
					return mapDriverErr("acquire advisory lock", err)
				}
			}
		}
	}

	sqlTx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return mapDriverErr("begin transaction", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx), t.store); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapDriverErr("commit transaction", err)
	}
	return nil
}
