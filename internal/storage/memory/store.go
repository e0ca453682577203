package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// eventRef locates an event in the per-account logs.
type eventRef struct {
	accountID string
	sequence  int64
}

// EventStore is an in-memory implementation of interfaces.EventStore.
// Appends are visible to readers as soon as they return.
type EventStore struct {
	mu        sync.RWMutex
	logs      map[string][]models.LedgerEvent // account id -> events ordered by sequence
	byEventID map[string]eventRef
}

// NewEventStore creates an empty in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		logs:      make(map[string][]models.LedgerEvent),
		byEventID: make(map[string]eventRef),
	}
}

// Append appends a single event.
func (s *EventStore) Append(ctx context.Context, event models.LedgerEvent) (int64, error) {
	seqs, err := s.AppendAll(ctx, []models.LedgerEvent{event})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendAll appends events atomically. Nothing is written if any event fails.
func (s *EventStore) AppendAll(_ context.Context, events []models.LedgerEvent) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every event against the log and against earlier events in the batch.
	heads := make(map[string]int64)
	ids := make(map[string]bool)
	for _, e := range events {
		if _, exists := s.byEventID[e.EventID]; exists || ids[e.EventID] {
			return nil, storage.ErrDuplicateEvent
		}
		ids[e.EventID] = true

		head, ok := heads[e.AccountID]
		if !ok {
			head = int64(len(s.logs[e.AccountID]))
		}
		if e.SequenceNumber != head+1 {
			return nil, &storage.OutOfOrderError{AccountID: e.AccountID, Expected: head + 1, Got: e.SequenceNumber}
		}
		heads[e.AccountID] = e.SequenceNumber
	}

	seqs := make([]int64, 0, len(events))
	for _, e := range events {
		s.logs[e.AccountID] = append(s.logs[e.AccountID], e)
		s.byEventID[e.EventID] = eventRef{accountID: e.AccountID, sequence: e.SequenceNumber}
		seqs = append(seqs, e.SequenceNumber)
	}
	return seqs, nil
}

// Read returns a copy of the events in [from, to].
func (s *EventStore) Read(_ context.Context, accountID string, from, to int64) ([]models.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[accountID]
	head := int64(len(log))
	if from < 1 {
		from = 1
	}
	if to <= 0 || to > head {
		to = head
	}
	if from > to {
		return []models.LedgerEvent{}, nil
	}

	copied := make([]models.LedgerEvent, to-from+1)
	copy(copied, log[from-1:to])
	return copied, nil
}

// Head returns the number of events in the account's log.
func (s *EventStore) Head(_ context.Context, accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.logs[accountID])), nil
}

// SequenceAt relies on timestamps being non-decreasing within an account.
func (s *EventStore) SequenceAt(_ context.Context, accountID string, at time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[accountID]
	// first index whose timestamp is after at
	i := sort.Search(len(log), func(i int) bool { return log[i].Timestamp.After(at) })
	return int64(i), nil
}

// GetByEventID returns the event with the given id.
func (s *EventStore) GetByEventID(_ context.Context, eventID string) (models.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.byEventID[eventID]
	if !ok {
		return models.LedgerEvent{}, storage.ErrNotFound
	}
	return s.logs[ref.accountID][ref.sequence-1], nil
}

// Compile-time check: ensure EventStore implements EventStore interface
var _ interfaces.EventStore = (*EventStore)(nil)
