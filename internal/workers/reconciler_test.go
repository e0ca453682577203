package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
)

type fakeEngine struct {
	retries atomic.Int32
	sweeps  atomic.Int32
	sweep   ledger.Sweep
	err     error
}

func (f *fakeEngine) RetryInvalidations(context.Context) (int, error) {
	f.retries.Add(1)
	return 0, f.err
}

func (f *fakeEngine) VerifyAll(context.Context) (ledger.Sweep, error) {
	f.sweeps.Add(1)
	return f.sweep, nil
}

func TestRunOnce(t *testing.T) {
	engine := &fakeEngine{sweep: ledger.Sweep{Accounts: 3, Consistent: 2, Mismatched: 1}}
	r := NewReconciler(engine, time.Minute, nil)

	sweep := r.RunOnce(context.Background())
	assert.Equal(t, engine.sweep.Accounts, sweep.Accounts)
	assert.Equal(t, 1, sweep.Mismatched)
	assert.Equal(t, int32(1), engine.retries.Load())
	assert.Equal(t, int32(1), engine.sweeps.Load())
}

func TestRunOnce_RetryFailureStillVerifies(t *testing.T) {
	engine := &fakeEngine{err: errors.New("redis down")}
	r := NewReconciler(engine, time.Minute, nil)

	r.RunOnce(context.Background())
	assert.Equal(t, int32(1), engine.sweeps.Load())
}

func TestStart_RunsOnInterval(t *testing.T) {
	engine := &fakeEngine{}
	r := NewReconciler(engine, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	assert.Eventually(t, func() bool { return engine.sweeps.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop())
}

func TestStop_WithoutStart(t *testing.T) {
	r := NewReconciler(&fakeEngine{}, time.Minute, nil)
	assert.NoError(t, r.Stop())
}
