package storage

import (
	"errors"
	"fmt"
)

// Storage errors for the append-only event log and the account registry.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is returned when an event id has already been appended.
	ErrDuplicateEvent = errors.New("duplicate event id")

	// ErrOutOfOrder is returned when an event's sequence number is not
	// exactly the account's previous sequence number plus one.
	ErrOutOfOrder = errors.New("sequence number out of order")

	// ErrAccountExists is returned when registering an account id twice.
	ErrAccountExists = errors.New("account already exists")
)

// OutOfOrderError carries the sequence the store expected for an account.
type OutOfOrderError struct {
	AccountID string
	Expected  int64
	Got       int64
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("account %s: expected sequence %d, got %d", e.AccountID, e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrOutOfOrder) hold.
func (e *OutOfOrderError) Is(target error) bool {
	return target == ErrOutOfOrder
}
