package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
)

const redisLockPrefix = "ledger:lock:"

// RedisLockerOptions configures the distributed locker.
type RedisLockerOptions struct {
	// Timeout bounds how long Lock waits for each account.
	Timeout time.Duration
	// Expiry is how long a lock is held before Redis drops it.
	Expiry time.Duration
	// RetryDelay is the delay between acquisition attempts.
	RetryDelay time.Duration
}

// RedisLocker serializes writers across service instances using redsync.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisLockerOptions
	logger *zap.Logger
}

// NewRedisLocker builds a locker on top of an existing go-redis client.
func NewRedisLocker(client goredislib.UniversalClient, opts RedisLockerOptions, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger.With(zap.String("component", "redis_locker")),
	}
}

func (l *RedisLocker) tries() int {
	n := int(l.opts.Timeout / l.opts.RetryDelay)
	if n < 1 {
		return 1
	}
	return n
}

func (l *RedisLocker) Lock(ctx context.Context, accountIDs ...string) (func(), error) {
	ids := ordered(accountIDs)
	held := make([]*redsync.Mutex, 0, len(ids))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// Unlock must run even when the caller's context is already done.
			if ok, err := held[i].UnlockContext(context.Background()); !ok || err != nil {
				l.logger.Warn("failed to release lock",
					zap.String("lock_key", held[i].Name()), zap.Bool("unlock_ok", ok), zap.Error(err))
			}
		}
	}

	for _, id := range ids {
		mutex := l.rs.NewMutex(
			redisLockPrefix+id,
			redsync.WithExpiry(l.opts.Expiry),
			redsync.WithTries(l.tries()),
			redsync.WithRetryDelay(l.opts.RetryDelay),
		)
		if err := mutex.LockContext(ctx); err != nil {
			release()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if isContention(err) {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("acquire lock for account %s: %w", id, err)
		}
		held = append(held, mutex)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// isContention matches the errors redsync returns when another holder has the lock.
func isContention(err error) bool {
	return errors.Is(err, redsync.ErrFailed) ||
		strings.Contains(err.Error(), "lock already taken") ||
		strings.Contains(err.Error(), "failed to acquire lock")
}

var _ interfaces.AccountLocker = (*RedisLocker)(nil)
