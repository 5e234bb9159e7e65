package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgErr(code string) error {
	return &pgconn.PgError{Code: code}
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(pgErr("40001")))
	assert.True(t, transient(pgErr("40P01")))
	assert.True(t, transient(fmt.Errorf("upsert: %w", pgErr("40001"))))
	assert.False(t, transient(pgErr("23505")))
	assert.False(t, transient(errors.New("connection refused")))
	assert.False(t, transient(nil))
}

func TestRetryPolicyDo(t *testing.T) {
	newPolicy := func(attempts int) RetryPolicy {
		return NewRetryPolicy(attempts, time.Millisecond, slog.New(slog.DiscardHandler))
	}

	t.Run("recovers once the conflict clears", func(t *testing.T) {
		var calls int
		err := newPolicy(4).Do(context.Background(), "upsert", func() error {
			calls++
			if calls < 3 {
				return pgErr("40001")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the last error after max attempts", func(t *testing.T) {
		var calls int
		err := newPolicy(3).Do(context.Background(), "upsert", func() error {
			calls++
			return pgErr("40P01")
		})
		var pge *pgconn.PgError
		require.ErrorAs(t, err, &pge)
		assert.Equal(t, "40P01", pge.Code)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-transient errors fail without retrying", func(t *testing.T) {
		var calls int
		err := newPolicy(5).Do(context.Background(), "upsert", func() error {
			calls++
			return pgErr("23505")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls int
		err := newPolicy(5).Do(ctx, "upsert", func() error {
			calls++
			return pgErr("40001")
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("constructor floors bad arguments", func(t *testing.T) {
		p := NewRetryPolicy(0, 0, slog.New(slog.DiscardHandler))
		assert.Equal(t, 1, p.maxAttempts)
		assert.Equal(t, 50*time.Millisecond, p.baseDelay)
	})
}
