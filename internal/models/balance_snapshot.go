package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSnapshot is a derived balance tied to a position in an account's log.
// It can always be rebuilt by replaying events 1..AsOfSequence.
type BalanceSnapshot struct {
	AccountID    string          `json:"account_id"`
	Balance      decimal.Decimal `json:"balance"`
	AsOfSequence int64           `json:"as_of_sequence_number"`
	ComputedAt   time.Time       `json:"computed_at"`
}
