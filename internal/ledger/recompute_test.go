package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/cache"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

func TestRecompute_AsOfSequence(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.apply(t, deposit("e1", "A", "100"))
	f.apply(t, withdrawal("e2", "A", "-40"))
	f.apply(t, fee("e3", "A", "-0.25"))

	ctx := context.Background()
	want := []string{"0", "100", "60", "59.75"}
	for seq, w := range want {
		snap, err := f.l.Recompute(ctx, "A", int64(seq))
		require.NoError(t, err)
		assert.Equal(t, int64(seq), snap.AsOfSequence)
		assert.True(t, snap.Balance.Equal(dec(w)), "seq %d: got %s", seq, snap.Balance)
	}

	_, err := f.l.Recompute(ctx, "A", 4)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.l.Recompute(ctx, "A", -7)
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.l.Recompute(ctx, "ghost", Latest)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRecompute_MatchesFullReplay(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.register(t, "B", "USD", false)
	f.apply(t, deposit("seed", "A", "500"))
	for i := 0; i < 50; i++ {
		f.apply(t, transfer(fmt.Sprintf("t%d", i), "A", "B", "-3.33"))
		if i%5 == 0 {
			f.apply(t, fee(fmt.Sprintf("f%d", i), "B", "-0.01"))
		}
	}

	full := NewLedger(Options{
		Store:      f.store,
		Accounts:   f.accounts,
		Cache:      f.cache,
		Locker:     f.locker,
		FullReplay: true,
	})
	for _, id := range []string{"A", "B"} {
		cached, ok, err := f.cache.Get(context.Background(), id)
		require.NoError(t, err)
		require.True(t, ok)

		replayed, err := full.Recompute(context.Background(), id, Latest)
		require.NoError(t, err)
		assert.Equal(t, cached.AsOfSequence, replayed.AsOfSequence)
		assert.True(t, cached.Balance.Equal(replayed.Balance), "%s: cached %s, replayed %s", id, cached.Balance, replayed.Balance)
	}
}

func TestRecompute_StartsFromCachedSnapshot(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.apply(t, deposit("e1", "A", "10"))
	f.apply(t, deposit("e2", "A", "10"))

	// A (wrong) snapshot at head is trusted as the starting point until
	// verification flags the account.
	_, err := f.cache.Put(context.Background(), models.BalanceSnapshot{AccountID: "A", Balance: dec("999"), AsOfSequence: 2})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "A").Equal(dec("999")))

	// Reads below the snapshot cannot use it.
	snap, err := f.l.Recompute(context.Background(), "A", 1)
	require.NoError(t, err)
	assert.True(t, snap.Balance.Equal(dec("10")))
}

func TestRecompute_IgnoresSnapshotAheadOfLog(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.apply(t, deposit("e1", "A", "10"))

	_, err := f.cache.Put(context.Background(), models.BalanceSnapshot{AccountID: "A", Balance: dec("50"), AsOfSequence: 9})
	require.NoError(t, err)
	assert.True(t, f.balance(t, "A").Equal(dec("10")))
}

// withFreshCache returns an engine over f's log with an empty cache.
func withFreshCache(f *fixture) (*Ledger, *cache.Memory) {
	c := cache.NewMemory()
	return NewLedger(Options{Store: f.store, Accounts: f.accounts, Cache: c, Locker: f.locker}), c
}

func TestRecompute_CancelledDoesNotWriteCache(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.apply(t, deposit("e1", "A", "10"))
	f.apply(t, deposit("e2", "A", "15"))
	l, c := withFreshCache(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Recompute(ctx, "A", Latest)
	require.ErrorIs(t, err, context.Canceled)

	_, ok, err := c.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecompute_PopulatesCacheOnlyAtHead(t *testing.T) {
	f := newFixture(t)
	f.register(t, "A", "USD", false)
	f.apply(t, deposit("e1", "A", "10"))
	f.apply(t, deposit("e2", "A", "15"))
	l, c := withFreshCache(f)

	_, err := l.Recompute(context.Background(), "A", 1)
	require.NoError(t, err)
	_, ok, _ := c.Get(context.Background(), "A")
	assert.False(t, ok)

	_, err = l.Recompute(context.Background(), "A", Latest)
	require.NoError(t, err)
	snap, ok, _ := c.Get(context.Background(), "A")
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.AsOfSequence)
	assert.True(t, snap.Balance.Equal(dec("25")))
}

func TestFold_DetectsGap(t *testing.T) {
	start := zeroSnapshot("A")
	evts := []models.LedgerEvent{
		{AccountID: "A", SequenceNumber: 1, Amount: dec("1")},
		{AccountID: "A", SequenceNumber: 3, Amount: dec("1")},
	}
	_, err := fold(context.Background(), start, evts)
	require.ErrorIs(t, err, ErrReconciliationMismatch)
}
