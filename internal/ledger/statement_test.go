package ledger

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

func day(month time.Month, d, hour int) time.Time {
	return time.Date(2026, month, d, hour, 0, 0, 0, time.UTC)
}

func statementFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.clock.step = 0
	f.register(t, "A", "USD", false)

	at := func(ts time.Time, p models.Posting) {
		f.clock.Set(ts)
		f.apply(t, p)
	}
	at(day(time.March, 1, 10), deposit("e1", "A", "100"))
	at(day(time.March, 1, 15), withdrawal("e2", "A", "-20"))
	at(day(time.March, 2, 8), fee("e3", "A", "-1"))
	at(day(time.March, 3, 12), deposit("e4", "A", "50"))
	at(day(time.April, 2, 9), deposit("e5", "A", "7"))
	return f
}

func TestStatement_Daily(t *testing.T) {
	f := statementFixture(t)

	st, err := f.l.Statement(context.Background(), "A", day(time.March, 2, 0), day(time.March, 31, 23), GroupDaily)
	require.NoError(t, err)
	assert.Equal(t, "USD", st.Currency)
	assert.Equal(t, int64(2), st.OpeningSequence)
	assert.True(t, st.OpeningBalance.Equal(dec("80")))
	assert.Equal(t, int64(4), st.ClosingSequence)
	assert.True(t, st.ClosingBalance.Equal(dec("129")))

	require.Len(t, st.Periods, 2)
	assert.Equal(t, day(time.March, 2, 0), st.Periods[0].Start)
	assert.True(t, st.Periods[0].Fees.Equal(dec("-1")))
	assert.True(t, st.Periods[0].Net.Equal(dec("-1")))
	assert.Equal(t, 1, st.Periods[0].Events)
	assert.Equal(t, day(time.March, 3, 0), st.Periods[1].Start)
	assert.True(t, st.Periods[1].Credits.Equal(dec("50")))
}

func TestStatement_Monthly(t *testing.T) {
	f := statementFixture(t)

	st, err := f.l.Statement(context.Background(), "A", day(time.March, 1, 0), day(time.April, 30, 0), GroupMonthly)
	require.NoError(t, err)
	assert.True(t, st.OpeningBalance.IsZero())
	assert.True(t, st.ClosingBalance.Equal(dec("136")))

	require.Len(t, st.Periods, 2)
	march := st.Periods[0]
	assert.Equal(t, day(time.March, 1, 0), march.Start)
	assert.True(t, march.Credits.Equal(dec("150")))
	assert.True(t, march.Debits.Equal(dec("-20")))
	assert.True(t, march.Fees.Equal(dec("-1")))
	assert.True(t, march.Net.Equal(dec("129")))
	assert.Equal(t, 4, march.Events)
	assert.Equal(t, 1, st.Periods[1].Events)
}

func TestStatement_EmptyRange(t *testing.T) {
	f := statementFixture(t)

	st, err := f.l.Statement(context.Background(), "A", day(time.May, 1, 0), day(time.May, 31, 0), GroupDaily)
	require.NoError(t, err)
	assert.Empty(t, st.Periods)
	assert.True(t, st.OpeningBalance.Equal(st.ClosingBalance))
	assert.True(t, st.ClosingBalance.Equal(dec("136")))

	_, err = f.l.Statement(context.Background(), "A", day(time.May, 2, 0), day(time.May, 1, 0), GroupDaily)
	require.ErrorIs(t, err, ErrValidation)
}

func TestStatement_WriteCSV(t *testing.T) {
	f := statementFixture(t)
	st, err := f.l.Statement(context.Background(), "A", day(time.March, 2, 0), day(time.March, 31, 23), GroupDaily)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, st.WriteCSV(&buf))
	assert.Equal(t,
		"period_start,credits,debits,fees,net,events\n"+
			"2026-03-02,0,0,-1,-1,1\n"+
			"2026-03-03,50,0,0,50,1\n",
		buf.String())
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("")
	require.NoError(t, err)
	assert.Equal(t, GroupDaily, g)

	g, err = ParseGroupBy("monthly")
	require.NoError(t, err)
	assert.Equal(t, GroupMonthly, g)

	_, err = ParseGroupBy("weekly")
	require.ErrorIs(t, err, ErrValidation)
}
