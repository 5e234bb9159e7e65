package storage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// transient reports whether err is a Postgres conflict a plain retry can
// clear: a serialization failure (40001) or a deadlock victim (40P01).
// Anything else, constraint violations included, surfaces to the caller.
func transient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// RetryPolicy re-runs summary upserts that lose a serialization or
// deadlock race against the ingestion path. One policy is shared across
// a reconcile cycle; the delay doubles per attempt with jitter so
// lockstep retries do not collide again.
type RetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewRetryPolicy creates a retry policy. Non-positive arguments fall back
// to one attempt and a 50ms base delay.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration, logger *slog.Logger) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}
	return RetryPolicy{maxAttempts: maxAttempts, baseDelay: baseDelay, logger: logger}
}

// Do runs op up to maxAttempts times, sleeping between transient
// conflicts. Non-transient errors and the final attempt's error return
// as-is; a context cancelled mid-wait returns ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, name string, op func() error) error {
	delay := p.baseDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !transient(err) || attempt >= p.maxAttempts {
			return err
		}

		wait := delay + time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter only
		p.logger.Debug("transient conflict, retrying",
			"op", name, "attempt", attempt, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
	}
}
