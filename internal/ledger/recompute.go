package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// Recompute folds an account's events up to asOf (or Latest) into a
// snapshot. It starts from the cached snapshot when that is trusted and
// not past asOf. A recompute at head refreshes the cache unless ctx was
// cancelled.
func (l *Ledger) Recompute(ctx context.Context, accountID string, asOf int64) (models.BalanceSnapshot, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return models.BalanceSnapshot{}, err
	}
	head, err := l.store.Head(ctx, accountID)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}
	switch {
	case asOf == Latest:
		asOf = head
	case asOf < 0:
		return models.BalanceSnapshot{}, invalid("as_of_sequence", "must not be negative")
	case asOf > head:
		return models.BalanceSnapshot{}, invalid("as_of_sequence", "%d is past the head sequence %d", asOf, head)
	}
	return l.recompute(ctx, accountID, asOf, head)
}

func (l *Ledger) recompute(ctx context.Context, accountID string, asOf, head int64) (models.BalanceSnapshot, error) {
	l.metrics.Recompute()

	start := zeroSnapshot(accountID)
	cached, ok := l.cachedStart(ctx, accountID, head)
	if ok && cached.AsOfSequence <= asOf {
		start = cached
	}

	snap, err := l.replayFrom(ctx, start, asOf)
	if err != nil {
		return models.BalanceSnapshot{}, err
	}

	// A cancelled recompute must not write; neither may one that only
	// re-read what the cache already holds.
	if asOf == head && ctx.Err() == nil && !(ok && cached.AsOfSequence == head) && !l.Flagged(accountID) {
		l.put(ctx, snap)
	}
	return snap, nil
}

// cachedStart returns a cached snapshot usable as a replay starting point.
func (l *Ledger) cachedStart(ctx context.Context, accountID string, head int64) (models.BalanceSnapshot, bool) {
	if l.fullReplay || !l.CacheTrusted(accountID) {
		return models.BalanceSnapshot{}, false
	}
	snap, ok, err := l.cache.Get(ctx, accountID)
	if err != nil {
		l.metrics.CacheError("get")
		l.logger.Warn("cache get failed", zap.String("account_id", accountID), zap.Error(err))
		return models.BalanceSnapshot{}, false
	}
	if !ok || snap.AsOfSequence > head {
		// A snapshot ahead of the log was never derived from it.
		return models.BalanceSnapshot{}, false
	}
	return snap, true
}

// replayFrom reads the events after start and folds them through asOf.
func (l *Ledger) replayFrom(ctx context.Context, start models.BalanceSnapshot, asOf int64) (models.BalanceSnapshot, error) {
	snap := start
	if start.AsOfSequence < asOf {
		evts, err := l.store.Read(ctx, start.AccountID, start.AsOfSequence+1, asOf)
		if err != nil {
			return models.BalanceSnapshot{}, err
		}
		snap, err = fold(ctx, start, evts)
		if err != nil {
			return models.BalanceSnapshot{}, err
		}
		if snap.AsOfSequence != asOf {
			return models.BalanceSnapshot{}, fmt.Errorf("%w: account %s: log ends at %d, want %d",
				ErrReconciliationMismatch, start.AccountID, snap.AsOfSequence, asOf)
		}
	}
	snap.ComputedAt = l.now().UTC()
	return snap, nil
}

// fold adds each event's amount to start. Events must continue start's
// sequence without gaps.
func fold(ctx context.Context, start models.BalanceSnapshot, evts []models.LedgerEvent) (models.BalanceSnapshot, error) {
	balance := start.Balance
	seq := start.AsOfSequence
	for _, e := range evts {
		if err := ctx.Err(); err != nil {
			return models.BalanceSnapshot{}, err
		}
		if e.SequenceNumber != seq+1 {
			return models.BalanceSnapshot{}, fmt.Errorf("%w: account %s: expected sequence %d, found %d",
				ErrReconciliationMismatch, start.AccountID, seq+1, e.SequenceNumber)
		}
		balance = balance.Add(e.Amount)
		seq = e.SequenceNumber
	}
	return models.BalanceSnapshot{AccountID: start.AccountID, Balance: balance, AsOfSequence: seq}, nil
}

func zeroSnapshot(accountID string) models.BalanceSnapshot {
	return models.BalanceSnapshot{AccountID: accountID, Balance: decimal.Zero}
}
