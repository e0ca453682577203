package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// GroupBy is the bucket width of a statement.
type GroupBy string

const (
	GroupDaily   GroupBy = "daily"
	GroupMonthly GroupBy = "monthly"
)

// ParseGroupBy accepts "daily" (the default for "") and "monthly".
func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(s) {
	case "", GroupDaily:
		return GroupDaily, nil
	case GroupMonthly:
		return GroupMonthly, nil
	default:
		return "", invalid("group_by", "%q is not daily or monthly", s)
	}
}

// start returns the UTC start of the period containing t.
func (g GroupBy) start(t time.Time) time.Time {
	t = t.UTC()
	if g == GroupMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Period aggregates the events of one day or month. Debits and fees are
// negative sums.
type Period struct {
	Start   time.Time       `json:"period_start"`
	Credits decimal.Decimal `json:"credits"`
	Debits  decimal.Decimal `json:"debits"`
	Fees    decimal.Decimal `json:"fees"`
	Net     decimal.Decimal `json:"net"`
	Events  int             `json:"events"`
}

// Statement is an account's activity between two instants, inclusive.
type Statement struct {
	AccountID       string          `json:"account_id"`
	Currency        string          `json:"currency"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	GroupBy         GroupBy         `json:"group_by"`
	OpeningSequence int64           `json:"opening_sequence_number"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	ClosingSequence int64           `json:"closing_sequence_number"`
	ClosingBalance  decimal.Decimal `json:"closing_balance"`
	Periods         []Period        `json:"periods"`
}

// Statement builds the account's statement for [from, to]. Periods
// without events are omitted.
func (l *Ledger) Statement(ctx context.Context, accountID string, from, to time.Time, groupBy GroupBy) (*Statement, error) {
	if to.Before(from) {
		return nil, invalid("to", "must not be before from")
	}
	account, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	head, err := l.store.Head(ctx, accountID)
	if err != nil {
		return nil, err
	}
	openSeq, err := l.store.SequenceAt(ctx, accountID, from.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	closeSeq, err := l.store.SequenceAt(ctx, accountID, to)
	if err != nil {
		return nil, err
	}

	opening, err := l.recompute(ctx, accountID, openSeq, head)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		AccountID:       accountID,
		Currency:        account.Currency,
		From:            from.UTC(),
		To:              to.UTC(),
		GroupBy:         groupBy,
		OpeningSequence: openSeq,
		OpeningBalance:  opening.Balance,
		ClosingSequence: openSeq,
		ClosingBalance:  opening.Balance,
		Periods:         []Period{},
	}
	if closeSeq <= openSeq {
		return st, nil
	}

	evts, err := l.store.Read(ctx, accountID, openSeq+1, closeSeq)
	if err != nil {
		return nil, err
	}
	closing, err := fold(ctx, opening, evts)
	if err != nil {
		return nil, err
	}
	st.ClosingSequence = closing.AsOfSequence
	st.ClosingBalance = closing.Balance

	for _, e := range evts {
		bucket := groupBy.start(e.Timestamp)
		if n := len(st.Periods); n == 0 || !st.Periods[n-1].Start.Equal(bucket) {
			st.Periods = append(st.Periods, Period{
				Start:   bucket,
				Credits: decimal.Zero,
				Debits:  decimal.Zero,
				Fees:    decimal.Zero,
				Net:     decimal.Zero,
			})
		}
		p := &st.Periods[len(st.Periods)-1]
		switch {
		case e.Kind == models.KindFee:
			p.Fees = p.Fees.Add(e.Amount)
		case e.Amount.IsPositive():
			p.Credits = p.Credits.Add(e.Amount)
		default:
			p.Debits = p.Debits.Add(e.Amount)
		}
		p.Net = p.Net.Add(e.Amount)
		p.Events++
	}
	return st, nil
}

// WriteCSV renders the statement periods as CSV with a header row.
func (s *Statement) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"period_start", "credits", "debits", "fees", "net", "events"}); err != nil {
		return err
	}
	for _, p := range s.Periods {
		record := []string{
			p.Start.Format(time.DateOnly),
			p.Credits.String(),
			p.Debits.String(),
			p.Fees.String(),
			p.Net.String(),
			strconv.Itoa(p.Events),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
