package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of financial operations the ledger accepts.
type EventKind string

const (
	KindDeposit    EventKind = "deposit"
	KindWithdrawal EventKind = "withdrawal"
	KindTransfer   EventKind = "transfer"
	KindFee        EventKind = "fee"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer, KindFee:
		return true
	default:
		return false
	}
}

// CounterLegSuffix is appended to a transfer's event id to name its credit leg.
const CounterLegSuffix = ":credit"

// LedgerEvent is a single immutable record in an account's event log.
type LedgerEvent struct {
	EventID               string          `json:"event_id"`
	AccountID             string          `json:"account_id"`
	Kind                  EventKind       `json:"kind"`
	Amount                decimal.Decimal `json:"amount"` // signed; credits positive, debits negative
	CounterpartyAccountID string          `json:"counterparty_account_id,omitempty"`
	CorrelationID         string          `json:"correlation_id"` // shared by both legs of a transfer
	Timestamp             time.Time       `json:"timestamp"`
	SequenceNumber        int64           `json:"sequence_number"` // 1-based, gap-free per account
}

// IsCounterLeg reports whether the event is the generated credit leg of a transfer.
func (e LedgerEvent) IsCounterLeg() bool {
	return e.Kind == KindTransfer && e.EventID != e.CorrelationID
}

// CounterLegID returns the event id of the credit leg for a transfer event id.
func CounterLegID(eventID string) string {
	return eventID + CounterLegSuffix
}
