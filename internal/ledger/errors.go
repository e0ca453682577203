package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/locks"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// Error classes. Typed errors below match their class with errors.Is.
var (
	// ErrValidation marks a malformed posting or account; nothing is persisted.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateEvent marks an event id that was already committed.
	ErrDuplicateEvent = storage.ErrDuplicateEvent

	// ErrOutOfOrder marks a sequence number that is not head+1; the caller must resync.
	ErrOutOfOrder = storage.ErrOutOfOrder

	// ErrInsufficientBalance marks a debit that would overdraw an account without a credit line.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrReconciliationMismatch marks an integrity problem found by replay.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")

	// ErrLockTimeout marks a transient lock acquisition failure.
	ErrLockTimeout = locks.ErrLockTimeout

	// ErrAccountNotFound marks an unregistered account id.
	ErrAccountNotFound = errors.New("account not found")
)

// OutOfOrderError is the store's sequence error, surfaced unchanged.
type OutOfOrderError = storage.OutOfOrderError

// ValidationError describes why a posting or account was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError reports the balance a debit was checked against.
type InsufficientBalanceError struct {
	AccountID string
	Balance   decimal.Decimal
	Amount    decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("account %s: balance %s cannot cover %s", e.AccountID, e.Balance, e.Amount)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// MismatchError carries the verification report that found discrepancies.
type MismatchError struct {
	Report *Report
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("account %s: %d reconciliation discrepancies", e.Report.AccountID, len(e.Report.Discrepancies))
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrReconciliationMismatch
}

// Classify maps an error to a short class name for metrics and responses.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateEvent):
		return "duplicate_event"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrReconciliationMismatch):
		return "reconciliation_mismatch"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
