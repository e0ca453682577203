package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// EventStore implements interfaces.EventStore on PostgreSQL.
// Rows are keyed by (account_id, sequence_number); event_id is unique.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const selectEventColumns = `SELECT event_id, account_id, kind, amount, counterparty_account_id,
	correlation_id, occurred_at, sequence_number FROM ledger_events`

func (s *EventStore) Append(ctx context.Context, event models.LedgerEvent) (int64, error) {
	seqs, err := s.AppendAll(ctx, []models.LedgerEvent{event})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendAll writes all events in a single transaction.
func (s *EventStore) AppendAll(ctx context.Context, events []models.LedgerEvent) (seqs []int64, err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	heads := make(map[string]int64)
	for _, e := range events {
		if err = s.checkEventID(ctx, dbTx, e.EventID); err != nil {
			return nil, err
		}

		head, ok := heads[e.AccountID]
		if !ok {
			const query = `SELECT COALESCE(MAX(sequence_number), 0) FROM ledger_events WHERE account_id = $1`
			if err = dbTx.QueryRowContext(ctx, query, e.AccountID).Scan(&head); err != nil {
				return nil, fmt.Errorf("read head: %w", err)
			}
		}
		if e.SequenceNumber != head+1 {
			err = &storage.OutOfOrderError{AccountID: e.AccountID, Expected: head + 1, Got: e.SequenceNumber}
			return nil, err
		}
		heads[e.AccountID] = e.SequenceNumber

		if err = s.insert(ctx, dbTx, e); err != nil {
			return nil, err
		}
		seqs = append(seqs, e.SequenceNumber)
	}

	if err = dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return seqs, nil
}

func (s *EventStore) checkEventID(ctx context.Context, dbTx *sql.Tx, eventID string) error {
	const query = `SELECT 1 FROM ledger_events WHERE event_id = $1 LIMIT 1`

	var exists int
	err := dbTx.QueryRowContext(ctx, query, eventID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check event id: %w", err)
	}
	return storage.ErrDuplicateEvent
}

func (s *EventStore) insert(ctx context.Context, dbTx *sql.Tx, e models.LedgerEvent) error {
	const query = `INSERT INTO ledger_events (account_id, sequence_number, event_id, kind, amount,
	counterparty_account_id, correlation_id, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := dbTx.ExecContext(ctx, query,
		e.AccountID,
		e.SequenceNumber,
		e.EventID,
		string(e.Kind),
		e.Amount,
		e.CounterpartyAccountID,
		e.CorrelationID,
		e.Timestamp.UTC(),
	)
	if err == nil {
		return nil
	}

	// A concurrent writer on another instance won the race.
	if constraint, ok := uniqueViolation(err); ok {
		switch constraint {
		case constraintEventID:
			return storage.ErrDuplicateEvent
		case constraintEventPK:
			return &storage.OutOfOrderError{AccountID: e.AccountID, Expected: e.SequenceNumber + 1, Got: e.SequenceNumber}
		}
	}
	return fmt.Errorf("insert ledger event: %w", err)
}

func (s *EventStore) Read(ctx context.Context, accountID string, from, to int64) ([]models.LedgerEvent, error) {
	if from < 1 {
		from = 1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if to <= 0 {
		rows, err = s.db.QueryContext(ctx, selectEventColumns+`
		WHERE account_id = $1 AND sequence_number >= $2
		ORDER BY sequence_number ASC`, accountID, from)
	} else {
		rows, err = s.db.QueryContext(ctx, selectEventColumns+`
		WHERE account_id = $1 AND sequence_number BETWEEN $2 AND $3
		ORDER BY sequence_number ASC`, accountID, from, to)
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger events: %w", err)
	}
	defer rows.Close()

	events := []models.LedgerEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}

func (s *EventStore) Head(ctx context.Context, accountID string) (int64, error) {
	const query = `SELECT COALESCE(MAX(sequence_number), 0) FROM ledger_events WHERE account_id = $1`

	var head int64
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&head); err != nil {
		return 0, fmt.Errorf("read head: %w", err)
	}
	return head, nil
}

func (s *EventStore) SequenceAt(ctx context.Context, accountID string, at time.Time) (int64, error) {
	const query = `SELECT COALESCE(MAX(sequence_number), 0) FROM ledger_events
	WHERE account_id = $1 AND occurred_at <= $2`

	var seq int64
	if err := s.db.QueryRowContext(ctx, query, accountID, at.UTC()).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read sequence at time: %w", err)
	}
	return seq, nil
}

func (s *EventStore) GetByEventID(ctx context.Context, eventID string) (models.LedgerEvent, error) {
	row := s.db.QueryRowContext(ctx, selectEventColumns+` WHERE event_id = $1`, eventID)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LedgerEvent{}, storage.ErrNotFound
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.LedgerEvent, error) {
	var (
		e    models.LedgerEvent
		kind string
	)
	err := row.Scan(
		&e.EventID,
		&e.AccountID,
		&kind,
		&e.Amount,
		&e.CounterpartyAccountID,
		&e.CorrelationID,
		&e.Timestamp,
		&e.SequenceNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return e, err
	}
	if err != nil {
		return e, fmt.Errorf("scan ledger event: %w", err)
	}
	e.Kind = models.EventKind(kind)
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

var _ interfaces.EventStore = (*EventStore)(nil)
