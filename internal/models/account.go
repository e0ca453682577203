package models

import "time"

// Account is the immutable identity of a ledger account.
// Its balance is never stored here; it is derived from the event log.
type Account struct {
	ID            string    `json:"account_id"`
	Currency      string    `json:"currency"`
	AllowNegative bool      `json:"allow_negative"` // credit line: withdrawals may take the balance below zero
	CreatedAt     time.Time `json:"created_at"`
}

// AccountState is the lifecycle state of an account.
type AccountState string

const (
	AccountUninitialized AccountState = "uninitialized"
	AccountActive        AccountState = "active"
)

// StateAt returns the account state for a given head sequence number.
// An account never goes back to uninitialized once it has an event.
func StateAt(head int64) AccountState {
	if head > 0 {
		return AccountActive
	}
	return AccountUninitialized
}
