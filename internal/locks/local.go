package locks

import (
	"context"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
)

// LocalLocker holds one lock per account inside the process.
// Each lock is a one-slot channel so acquisition can give up after a timeout.
type LocalLocker struct {
	timeout time.Duration
	muMap   map[string]chan struct{} // account id -> lock slot
	mapMu   sync.Mutex               // protects muMap itself
}

// NewLocalLocker creates a locker that waits at most timeout for all accounts.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{
		timeout: timeout,
		muMap:   make(map[string]chan struct{}),
	}
}

func (l *LocalLocker) getAccountLock(accountID string) chan struct{} {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountID]; !exists {
		l.muMap[accountID] = make(chan struct{}, 1)
	}
	return l.muMap[accountID]
}

// Lock acquires the accounts in order. On timeout or cancellation every lock
// taken so far is released before returning.
func (l *LocalLocker) Lock(ctx context.Context, accountIDs ...string) (func(), error) {
	ids := ordered(accountIDs)
	held := make([]chan struct{}, 0, len(ids))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	for _, id := range ids {
		slot := l.getAccountLock(id)
		select {
		case slot <- struct{}{}:
			held = append(held, slot)
		case <-timer.C:
			release()
			return nil, ErrLockTimeout
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

var _ interfaces.AccountLocker = (*LocalLocker)(nil)
