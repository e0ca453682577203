package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

func snap(account string, seq int64, balance string) models.BalanceSnapshot {
	return models.BalanceSnapshot{
		AccountID:    account,
		Balance:      decimal.RequireFromString(balance),
		AsOfSequence: seq,
		ComputedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newRedisCache(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ttl), mr
}

// Both caches must honour the same freshness rules.
func cacheImplementations(t *testing.T) map[string]interfaces.BalanceCache {
	r, _ := newRedisCache(t, 0)
	return map[string]interfaces.BalanceCache{
		"memory": NewMemory(),
		"redis":  r,
	}
}

func TestCache_GetPut(t *testing.T) {
	for name, c := range cacheImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := c.Get(ctx, "A")
			require.NoError(t, err)
			assert.False(t, ok)

			stored, err := c.Put(ctx, snap("A", 3, "12.50"))
			require.NoError(t, err)
			assert.True(t, stored)

			got, ok, err := c.Get(ctx, "A")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(3), got.AsOfSequence)
			assert.True(t, got.Balance.Equal(decimal.RequireFromString("12.5")))
		})
	}
}

func TestCache_OlderPutIsDiscarded(t *testing.T) {
	for name, c := range cacheImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := c.Put(ctx, snap("A", 5, "50"))
			require.NoError(t, err)

			stored, err := c.Put(ctx, snap("A", 4, "40"))
			require.NoError(t, err)
			assert.False(t, stored)

			got, _, _ := c.Get(ctx, "A")
			assert.Equal(t, int64(5), got.AsOfSequence)
		})
	}
}

func TestCache_InvalidateRaisesFloor(t *testing.T) {
	for name, c := range cacheImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := c.Put(ctx, snap("A", 2, "20"))
			require.NoError(t, err)

			require.NoError(t, c.Invalidate(ctx, "A", 3))
			_, ok, err := c.Get(ctx, "A")
			require.NoError(t, err)
			assert.False(t, ok)

			// A slow reader finishing after the invalidation cannot bring
			// the old snapshot back.
			stored, err := c.Put(ctx, snap("A", 2, "20"))
			require.NoError(t, err)
			assert.False(t, stored)

			stored, err = c.Put(ctx, snap("A", 3, "30"))
			require.NoError(t, err)
			assert.True(t, stored)

			// Lowering the floor is a no-op.
			require.NoError(t, c.Invalidate(ctx, "A", 1))
			got, ok, _ := c.Get(ctx, "A")
			require.True(t, ok)
			assert.Equal(t, int64(3), got.AsOfSequence)
		})
	}
}

func TestCache_InvalidateKeepsSnapshotAtFloor(t *testing.T) {
	for name, c := range cacheImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := c.Put(ctx, snap("A", 4, "1"))
			require.NoError(t, err)
			require.NoError(t, c.Invalidate(ctx, "A", 4))

			_, ok, err := c.Get(ctx, "A")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRedis_TTL(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()

	_, err := c.Put(ctx, snap("A", 1, "1"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(key("A")))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_UnavailableServerReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedis(client, 0)

	_, _, err := c.Get(context.Background(), "A")
	require.Error(t, err)
	require.Error(t, c.Invalidate(context.Background(), "A", 1))
}
