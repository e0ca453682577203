package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdered(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, ordered([]string{"c", "a", "b", "a"}))
	assert.Empty(t, ordered(nil))
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)

	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "A")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestLocalLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	l := NewLocalLocker(5 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []string{"A", "B"}
			if i%2 == 1 {
				ids = []string{"B", "A"}
			}
			unlock, err := l.Lock(context.Background(), ids...)
			if assert.NoError(t, err) {
				unlock()
			}
		}(i)
	}
	wg.Wait()
}

func TestLocalLocker_TimeoutReleasesPartialLocks(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)

	holdB, err := l.Lock(context.Background(), "B")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "A", "B")
	require.ErrorIs(t, err, ErrLockTimeout)

	// A was taken and must have been released again.
	unlockA, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	unlockA()
	holdB()
}

func TestLocalLocker_Cancellation(t *testing.T) {
	l := NewLocalLocker(time.Minute)
	hold, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "A")
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocalLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewLocalLocker(time.Second)
	unlock, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	again()
}
