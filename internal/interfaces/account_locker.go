package interfaces

import "context"

// AccountLocker serializes writers per account.
type AccountLocker interface {
	// Lock acquires every listed account, waiting a bounded time.
	// The returned func releases all of them and is safe to call twice.
	Lock(ctx context.Context, accountIDs ...string) (unlock func(), err error)
}
