// Package locks serializes ledger writers per account.
//
// Accounts are always acquired in ascending id order so that two transfers
// touching the same pair of accounts cannot deadlock.
package locks

import (
	"errors"
	"sort"
)

// ErrLockTimeout is returned when an account lock is not acquired within the
// configured wait. It is transient; callers retry with backoff.
var ErrLockTimeout = errors.New("timed out waiting for account lock")

// ordered returns the distinct ids in ascending order.
func ordered(accountIDs []string) []string {
	seen := make(map[string]bool, len(accountIDs))
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
