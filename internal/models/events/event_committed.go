package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventCommitted is published after a ledger event is durably appended.
type EventCommitted struct {
	EventID               string          `json:"event_id"`
	CorrelationID         string          `json:"correlation_id"`
	AccountID             string          `json:"account_id"`
	Kind                  string          `json:"kind"`
	Amount                decimal.Decimal `json:"amount"`
	CounterpartyAccountID string          `json:"counterparty_account_id,omitempty"`
	SequenceNumber        int64           `json:"sequence_number"`
	Balance               decimal.Decimal `json:"balance"`
	OccurredAt            time.Time       `json:"occurred_at"`
}
