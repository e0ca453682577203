package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

type brokenCache struct {
	calls int
}

var errBroken = errors.New("connection refused")

func (b *brokenCache) Get(context.Context, string) (models.BalanceSnapshot, bool, error) {
	b.calls++
	return models.BalanceSnapshot{}, false, errBroken
}

func (b *brokenCache) Put(context.Context, models.BalanceSnapshot) (bool, error) {
	b.calls++
	return false, errBroken
}

func (b *brokenCache) Invalidate(context.Context, string, int64) error {
	b.calls++
	return errBroken
}

func TestBreaker_PassesThrough(t *testing.T) {
	b := NewBreaker(NewMemory(), DefaultBreakerConfig(), zap.NewNop())
	ctx := context.Background()

	stored, err := b.Put(ctx, snap("A", 1, "5"))
	require.NoError(t, err)
	assert.True(t, stored)

	got, ok, err := b.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.AsOfSequence)

	require.NoError(t, b.Invalidate(ctx, "A", 2))
	_, ok, err = b.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &brokenCache{}
	cfg := DefaultBreakerConfig()
	cfg.ConsecutiveFailures = 3
	cfg.Timeout = time.Hour
	b := NewBreaker(next, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := b.Get(ctx, "A")
		require.ErrorIs(t, err, errBroken)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Invalidate(ctx, "A", 1)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, next.calls, "an open breaker must not reach the cache")
}
