package memory

import (
	"context"
	"sort"
	"sync"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// AccountStore is an in-memory account registry.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]models.Account
}

// NewAccountStore creates an empty registry.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]models.Account)}
}

func (s *AccountStore) CreateAccount(_ context.Context, account models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return storage.ErrAccountExists
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *AccountStore) GetAccount(_ context.Context, accountID string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return models.Account{}, storage.ErrNotFound
	}
	return account, nil
}

// ListAccounts returns accounts sorted by id.
func (s *AccountStore) ListAccounts(_ context.Context) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

var _ interfaces.AccountStore = (*AccountStore)(nil)
