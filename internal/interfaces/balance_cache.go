package interfaces

import (
	"context"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// BalanceCache holds derived balance snapshots. It is never authoritative.
type BalanceCache interface {
	// Get returns the snapshot for an account if one is cached and fresh.
	Get(ctx context.Context, accountID string) (models.BalanceSnapshot, bool, error)

	// Put stores a snapshot unless it is older than the freshness floor or
	// older than the snapshot already held. It reports whether it was stored.
	Put(ctx context.Context, snapshot models.BalanceSnapshot) (bool, error)

	// Invalidate raises the account's freshness floor: snapshots below
	// floor are dropped and later puts below it are discarded.
	Invalidate(ctx context.Context, accountID string, floor int64) error
}
