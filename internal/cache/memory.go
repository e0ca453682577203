// Package cache holds balance snapshot caches. None of them is a system of
// record: every entry can be rebuilt from the event log.
package cache

import (
	"context"
	"sync"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

type entry struct {
	snapshot *models.BalanceSnapshot
	floor    int64 // snapshots below this sequence are stale
}

// Memory is a process-local balance cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, accountID string) (models.BalanceSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[accountID]
	if !ok || e.snapshot == nil || e.snapshot.AsOfSequence < e.floor {
		return models.BalanceSnapshot{}, false, nil
	}
	return *e.snapshot, true, nil
}

func (m *Memory) Put(_ context.Context, snapshot models.BalanceSnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[snapshot.AccountID]
	if snapshot.AsOfSequence < e.floor {
		return false, nil
	}
	if e.snapshot != nil && e.snapshot.AsOfSequence > snapshot.AsOfSequence {
		return false, nil
	}
	s := snapshot
	e.snapshot = &s
	m.entries[snapshot.AccountID] = e
	return true, nil
}

func (m *Memory) Invalidate(_ context.Context, accountID string, floor int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entries[accountID]
	if floor > e.floor {
		e.floor = floor
	}
	if e.snapshot != nil && e.snapshot.AsOfSequence < e.floor {
		e.snapshot = nil
	}
	m.entries[accountID] = e
	return nil
}

var _ interfaces.BalanceCache = (*Memory)(nil)
