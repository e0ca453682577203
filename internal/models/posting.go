package models

import "github.com/shopspring/decimal"

// Posting is a client's intent to record a financial event.
// The engine turns it into one LedgerEvent, or two for a transfer.
type Posting struct {
	EventID               string          `json:"event_id"`
	AccountID             string          `json:"account_id"`
	Kind                  EventKind       `json:"kind"`
	Amount                decimal.Decimal `json:"amount"`
	CounterpartyAccountID string          `json:"counterparty_account_id,omitempty"`

	// ExpectedSequence, when set, must equal the account's next sequence number.
	ExpectedSequence *int64 `json:"expected_sequence,omitempty"`
}

// Touched returns the accounts a posting writes to.
func (p Posting) Touched() []string {
	if p.Kind == KindTransfer {
		return []string{p.AccountID, p.CounterpartyAccountID}
	}
	return []string{p.AccountID}
}
