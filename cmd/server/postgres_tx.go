package main

import (
	"context"
	"database/sql"
	"time"

	"mppchs/internal/changerequest/service"
	dErrors "mppchs/pkg/domain-errors"
	txcontext "mppchs/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// postgresTx runs change request operations in one SQL transaction. The
// stores are shared instances that pick the transaction up from ctx.
type postgresTx struct {
	db      *sql.DB
	stores  service.Stores
	timeout time.Duration
}

func newPostgresTx(db *sql.DB, stores service.Stores, timeout time.Duration) *postgresTx {
	return &postgresTx{db: db, stores: stores, timeout: timeout}
}

func (t *postgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores service.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}
