package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// EventStore is the append-only system of record for ledger events.
type EventStore interface {
	// Append durably appends one event and returns its sequence number.
	// Returns storage.ErrDuplicateEvent or a *storage.OutOfOrderError.
	Append(ctx context.Context, event models.LedgerEvent) (int64, error)

	// AppendAll appends events atomically: all become visible or none do.
	AppendAll(ctx context.Context, events []models.LedgerEvent) ([]int64, error)

	// Read returns an account's events with from <= sequence <= to, ascending.
	// A non-positive to means "through the head".
	Read(ctx context.Context, accountID string, from, to int64) ([]models.LedgerEvent, error)

	// Head returns the highest committed sequence number, 0 for no events.
	Head(ctx context.Context, accountID string) (int64, error)

	// SequenceAt returns the highest sequence whose timestamp is at or before at.
	SequenceAt(ctx context.Context, accountID string, at time.Time) (int64, error)

	// GetByEventID looks an event up by its global id. Returns storage.ErrNotFound.
	GetByEventID(ctx context.Context, eventID string) (models.LedgerEvent, error)
}

// AccountStore registers account identities.
type AccountStore interface {
	// CreateAccount returns storage.ErrAccountExists when the id is taken.
	CreateAccount(ctx context.Context, account models.Account) error

	// GetAccount returns storage.ErrNotFound for unknown ids.
	GetAccount(ctx context.Context, accountID string) (models.Account, error)

	ListAccounts(ctx context.Context) ([]models.Account, error)
}
