package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	apperrors "github.com/atelierhq/atelier-auction-backend/internal/domain/errors"
)

// Postgres SQLSTATE codes that abort a serializable transaction and are safe
// to retry from scratch.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

const (
	// maxTxRetries bounds how many times a serializable transaction is
	// re-run after a serialization failure.
	maxTxRetries = 3

	// retryBaseDelay is doubled on each subsequent retry.
	retryBaseDelay = 100 * time.Millisecond
)

// IsSerializationFailure reports whether err is the retry sentinel: a
// conflict detected by serializable isolation (or a deadlock). Domain errors
// never match and are therefore never retried.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// InSerializableTx runs fn inside a serializable transaction. The closure is
// re-run from scratch on serialization failures, up to maxTxRetries times;
// any other error aborts immediately. When the retry budget is exhausted the
// caller receives a retryable conflict error.
func (p *ConnectionPool) InSerializableTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return withSerializableRetry(ctx, p.logger, func() error {
		return p.TransactionWithOptions(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
	})
}

func withSerializableRetry(ctx context.Context, logger *zap.Logger, run func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxTxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			logger.Debug("retrying serializable transaction",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
		}

		err := run()
		if err == nil {
			return nil
		}
		if !IsSerializationFailure(err) {
			return err
		}
		lastErr = err
	}

	return apperrors.NewTransactionConflictError(lastErr)
}
