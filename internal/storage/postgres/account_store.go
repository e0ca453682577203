package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// AccountStore implements interfaces.AccountStore on PostgreSQL.
type AccountStore struct {
	db *sql.DB
}

func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) CreateAccount(ctx context.Context, a models.Account) error {
	const query = `INSERT INTO accounts (account_id, currency, allow_negative, created_at)
	VALUES ($1, $2, $3, $4)`

	_, err := s.db.ExecContext(ctx, query, a.ID, a.Currency, a.AllowNegative, a.CreatedAt.UTC())
	if constraint, ok := uniqueViolation(err); ok && constraint == constraintAccountsPKey {
		return storage.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *AccountStore) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	const query = `SELECT account_id, currency, allow_negative, created_at FROM accounts WHERE account_id = $1`

	var a models.Account
	err := s.db.QueryRowContext(ctx, query, accountID).Scan(&a.ID, &a.Currency, &a.AllowNegative, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *AccountStore) ListAccounts(ctx context.Context) ([]models.Account, error) {
	const query = `SELECT account_id, currency, allow_negative, created_at FROM accounts ORDER BY account_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Currency, &a.AllowNegative, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

var _ interfaces.AccountStore = (*AccountStore)(nil)
