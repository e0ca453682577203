package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, timeout time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, RedisLockerOptions{
		Timeout:    timeout,
		Expiry:     5 * time.Second,
		RetryDelay: 10 * time.Millisecond,
	}, nil), mr
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	l, mr := newRedisLocker(t, 200*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "B", "A")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:lock:A"))
	assert.True(t, mr.Exists("ledger:lock:B"))

	unlock()
	assert.False(t, mr.Exists("ledger:lock:A"))
	assert.False(t, mr.Exists("ledger:lock:B"))
}

func TestRedisLocker_ContentionTimesOut(t *testing.T) {
	l, _ := newRedisLocker(t, 50*time.Millisecond)

	hold, err := l.Lock(context.Background(), "A")
	require.NoError(t, err)
	defer hold()

	_, err = l.Lock(context.Background(), "A")
	require.ErrorIs(t, err, ErrLockTimeout)
}

func TestRedisLocker_ReleasesOnPartialFailure(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)

	holdB, err := l.Lock(context.Background(), "B")
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), "A", "B")
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, mr.Exists("ledger:lock:A"))
	holdB()
}

func TestRedisLocker_Tries(t *testing.T) {
	l := &RedisLocker{opts: RedisLockerOptions{Timeout: time.Second, RetryDelay: 100 * time.Millisecond}}
	assert.Equal(t, 10, l.tries())

	l.opts.Timeout = time.Millisecond
	assert.Equal(t, 1, l.tries())
}
