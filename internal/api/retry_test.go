package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
)

func TestWithRetry_RetriesLockTimeouts(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), RetryPolicy{MaxRetries: 3, Base: time.Millisecond}, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, fmt.Errorf("lock A: %w", ledger.ErrLockTimeout)
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{MaxRetries: 2, Base: time.Millisecond}, func() (int, error) {
		calls++
		return 0, ledger.ErrLockTimeout
	})
	require.ErrorIs(t, err, ledger.ErrLockTimeout)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_OtherErrorsArePermanent(t *testing.T) {
	calls := 0
	cause := &ledger.InsufficientBalanceError{AccountID: "A"}
	_, err := withRetry(context.Background(), RetryPolicy{MaxRetries: 5, Base: time.Millisecond}, func() (int, error) {
		calls++
		return 0, cause
	})
	assert.Equal(t, 1, calls)

	var ibe *ledger.InsufficientBalanceError
	require.True(t, errors.As(err, &ibe))
	assert.Equal(t, "A", ibe.AccountID)
}

func TestWithRetry_ZeroRetries(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{}, func() (struct{}, error) {
		calls++
		return struct{}{}, ledger.ErrLockTimeout
	})
	require.ErrorIs(t, err, ledger.ErrLockTimeout)
	assert.Equal(t, 1, calls)
}
