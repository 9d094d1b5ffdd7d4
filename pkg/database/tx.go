package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Transactor runs fn as one unit of work. Repositories called with the ctx handed to fn
// take part in the same transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

// TxRunner is the pgx backed Transactor.
type TxRunner struct {
	db          PgxIface
	opts        pgx.TxOptions
	lockTimeout time.Duration
}

func NewTxRunner(db PgxIface, isolation string, lockTimeout time.Duration) *TxRunner {
	return &TxRunner{
		db:          db,
		opts:        pgx.TxOptions{IsoLevel: ParseIsolation(isolation)},
		lockTimeout: lockTimeout,
	}
}

// ParseIsolation maps the config value to a pgx isolation level, defaulting to read committed.
func ParseIsolation(level string) pgx.TxIsoLevel {
	switch level {
	case "serializable":
		return pgx.Serializable
	case "repeatable_read":
		return pgx.RepeatableRead
	default:
		return pgx.ReadCommitted
	}
}

func (t *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	// nested calls join the outer transaction
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if t.lockTimeout > 0 {
		// lock waits past the timeout fail with 55P03 instead of queueing forever
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", t.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true

	return nil
}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db Querier) Querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
