package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// Status is the outcome of verifying one account.
type Status string

const (
	StatusConsistent Status = "consistent"
	StatusMismatch   Status = "mismatch"
)

// Checks performed by Verify.
const (
	CheckSequenceContinuity = "sequence_continuity"
	CheckTransferLegs       = "transfer_legs"
	CheckCachedBalance      = "cached_balance"
)

// Discrepancy is one failed check.
type Discrepancy struct {
	Check    string `json:"check"`
	Sequence int64  `json:"sequence_number,omitempty"`
	Detail   string `json:"detail"`
}

// Report is the result of replaying an account from sequence zero.
type Report struct {
	AccountID       string           `json:"account_id"`
	Status          Status           `json:"status"`
	HeadSequence    int64            `json:"head_sequence_number"`
	ReplayedBalance decimal.Decimal  `json:"replayed_balance"`
	CachedSequence  int64            `json:"cached_sequence_number,omitempty"`
	CachedBalance   *decimal.Decimal `json:"cached_balance,omitempty"`
	Discrepancies   []Discrepancy    `json:"details"`
	VerifiedAt      time.Time        `json:"verified_at"`
}

func (r *Report) add(check string, seq int64, format string, args ...any) {
	r.Discrepancies = append(r.Discrepancies, Discrepancy{Check: check, Sequence: seq, Detail: fmt.Sprintf(format, args...)})
}

// Verify replays the account's full log independently of the cache and
// checks it against the cached snapshot. A mismatch is reported as a
// *MismatchError alongside the report and flags the account; nothing is
// repaired.
func (l *Ledger) Verify(ctx context.Context, accountID string) (*Report, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	// The cache is read before the head so a concurrent commit cannot put
	// a snapshot past the head we replay to.
	cached, ok, err := l.cache.Get(ctx, accountID)
	if err != nil {
		l.metrics.CacheError("get")
		l.logger.Warn("cache get failed during verify", zap.String("account_id", accountID), zap.Error(err))
	}
	head, err := l.store.Head(ctx, accountID)
	if err != nil {
		return nil, err
	}
	evts, err := l.store.Read(ctx, accountID, 1, head)
	if err != nil {
		return nil, err
	}

	report := &Report{
		AccountID:       accountID,
		HeadSequence:    head,
		ReplayedBalance: decimal.Zero,
		Discrepancies:   []Discrepancy{},
	}

	// Running balances by sequence, for comparing against the cache.
	balances := make(map[int64]decimal.Decimal, len(evts))
	var prev int64
	for _, e := range evts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.SequenceNumber != prev+1 {
			report.add(CheckSequenceContinuity, e.SequenceNumber, "expected sequence %d, found %d", prev+1, e.SequenceNumber)
		}
		prev = e.SequenceNumber
		report.ReplayedBalance = report.ReplayedBalance.Add(e.Amount)
		balances[e.SequenceNumber] = report.ReplayedBalance

		if e.Kind == models.KindTransfer {
			if err := l.checkTransferLeg(ctx, report, e); err != nil {
				return nil, err
			}
		}
	}
	if prev != head {
		report.add(CheckSequenceContinuity, head, "log ends at %d but head is %d", prev, head)
	}

	if ok {
		report.CachedSequence = cached.AsOfSequence
		report.CachedBalance = &cached.Balance
		want, known := balances[cached.AsOfSequence]
		switch {
		case cached.AsOfSequence > head:
			report.add(CheckCachedBalance, cached.AsOfSequence, "cached snapshot is ahead of head %d", head)
		case cached.AsOfSequence == 0 && !cached.Balance.IsZero():
			report.add(CheckCachedBalance, 0, "cached balance %s before any event", cached.Balance)
		case cached.AsOfSequence > 0 && !known:
			report.add(CheckCachedBalance, cached.AsOfSequence, "cached snapshot refers to a missing event")
		case known && !want.Equal(cached.Balance):
			report.add(CheckCachedBalance, cached.AsOfSequence, "cached balance %s, replayed %s", cached.Balance, want)
		}
	}

	report.VerifiedAt = l.now().UTC()
	if len(report.Discrepancies) == 0 {
		report.Status = StatusConsistent
		l.metrics.Verified(string(StatusConsistent))
		return report, nil
	}

	report.Status = StatusMismatch
	l.metrics.Verified(string(StatusMismatch))
	l.flag(report)
	l.logger.Error("reconciliation mismatch",
		zap.String("account_id", accountID),
		zap.Int64("head_sequence", head),
		zap.String("replayed_balance", report.ReplayedBalance.String()),
		zap.Any("discrepancies", report.Discrepancies))
	return report, &MismatchError{Report: report}
}

// checkTransferLeg confirms that a transfer leg has its opposite leg in the
// counterparty's log.
func (l *Ledger) checkTransferLeg(ctx context.Context, report *Report, e models.LedgerEvent) error {
	otherID := models.CounterLegID(e.EventID)
	if e.IsCounterLeg() {
		otherID = e.CorrelationID
	}
	other, err := l.store.GetByEventID(ctx, otherID)
	if errors.Is(err, storage.ErrNotFound) {
		report.add(CheckTransferLegs, e.SequenceNumber, "transfer %s has no opposite leg %s", e.EventID, otherID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up transfer leg %s: %w", otherID, err)
	}

	switch {
	case other.AccountID != e.CounterpartyAccountID || other.CounterpartyAccountID != e.AccountID:
		report.add(CheckTransferLegs, e.SequenceNumber, "leg %s posts %s->%s, expected %s->%s",
			other.EventID, other.AccountID, other.CounterpartyAccountID, e.CounterpartyAccountID, e.AccountID)
	case other.CorrelationID != e.CorrelationID:
		report.add(CheckTransferLegs, e.SequenceNumber, "leg %s has correlation id %s, expected %s",
			other.EventID, other.CorrelationID, e.CorrelationID)
	case !other.Amount.Add(e.Amount).IsZero():
		report.add(CheckTransferLegs, e.SequenceNumber, "legs %s and %s sum to %s",
			e.EventID, other.EventID, other.Amount.Add(e.Amount))
	}
	return nil
}

// Sweep summarizes a VerifyAll run.
type Sweep struct {
	Accounts   int       `json:"accounts"`
	Consistent int       `json:"consistent"`
	Mismatched int       `json:"mismatched"`
	Failed     int       `json:"failed"`
	Mismatches []*Report `json:"mismatches,omitempty"`
}

// VerifyAll verifies every registered account. Mismatches are collected,
// not returned as errors; the error is non-nil only when the sweep could
// not run or ctx ended.
func (l *Ledger) VerifyAll(ctx context.Context) (Sweep, error) {
	accounts, err := l.accounts.ListAccounts(ctx)
	if err != nil {
		return Sweep{}, fmt.Errorf("list accounts: %w", err)
	}

	var sweep Sweep
	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}
		sweep.Accounts++

		report, err := l.Verify(ctx, a.ID)
		var mismatch *MismatchError
		switch {
		case errors.As(err, &mismatch):
			sweep.Mismatched++
			sweep.Mismatches = append(sweep.Mismatches, mismatch.Report)
		case err != nil:
			sweep.Failed++
			l.logger.Warn("verify failed", zap.String("account_id", a.ID), zap.Error(err))
		case report.Status == StatusConsistent:
			sweep.Consistent++
		}
	}
	return sweep, nil
}
