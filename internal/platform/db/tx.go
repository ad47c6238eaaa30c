package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxRunner executes units of work inside serializable transactions, retrying
// the whole unit when Postgres reports a serialization failure or deadlock.
type TxRunner struct {
	begin      txBeginner
	maxRetries int
	logger     zerolog.Logger
}

func NewTxRunner(pool *pgxpool.Pool, maxRetries int, logger zerolog.Logger) *TxRunner {
	return newTxRunner(pool, maxRetries, logger)
}

func newTxRunner(begin txBeginner, maxRetries int, logger zerolog.Logger) *TxRunner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &TxRunner{begin: begin, maxRetries: maxRetries, logger: logger}
}

// InTx runs fn with a context carrying the transaction. Repositories resolve
// it through QuerierFromContext. A context that already carries a transaction
// is joined rather than nested.
func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt < r.maxRetries {
			r.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("retrying serializable transaction")
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	beginner := r.begin
	if conn := ConnFromContext(ctx); conn != nil {
		beginner = conn
	}

	tx, err := beginner.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a transient transaction conflict.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}
