package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

const redisKeyPrefix = "ledger:balance:"

// Each account is one hash: seq, snapshot (JSON) and floor.
// Both scripts compare sequences server-side so concurrent puts and
// invalidations from different instances cannot reorder.
var putScript = redis.NewScript(`
local floor = tonumber(redis.call('HGET', KEYS[1], 'floor') or '0')
local seq = tonumber(ARGV[1])
if seq < floor then return 0 end
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) > seq then return 0 end
redis.call('HSET', KEYS[1], 'seq', ARGV[1], 'snapshot', ARGV[2])
if tonumber(ARGV[3]) > 0 then redis.call('EXPIRE', KEYS[1], ARGV[3]) end
return 1
`)

var invalidateScript = redis.NewScript(`
local floor = tonumber(redis.call('HGET', KEYS[1], 'floor') or '0')
local target = tonumber(ARGV[1])
if target > floor then
  redis.call('HSET', KEYS[1], 'floor', ARGV[1])
  floor = target
end
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) < floor then redis.call('HDEL', KEYS[1], 'seq', 'snapshot') end
if tonumber(ARGV[2]) > 0 then redis.call('EXPIRE', KEYS[1], ARGV[2]) end
return 1
`)

// Redis is a balance cache shared by every engine instance.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps client. A zero ttl keeps entries until invalidated.
func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func key(accountID string) string {
	return redisKeyPrefix + accountID
}

func (r *Redis) Get(ctx context.Context, accountID string) (models.BalanceSnapshot, bool, error) {
	vals, err := r.client.HMGet(ctx, key(accountID), "seq", "snapshot", "floor").Result()
	if err != nil {
		return models.BalanceSnapshot{}, false, fmt.Errorf("redis hmget: %w", err)
	}

	raw, ok := vals[1].(string)
	if !ok {
		return models.BalanceSnapshot{}, false, nil
	}

	var snapshot models.BalanceSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return models.BalanceSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}

	if floorRaw, ok := vals[2].(string); ok {
		floor, err := strconv.ParseInt(floorRaw, 10, 64)
		if err != nil {
			return models.BalanceSnapshot{}, false, fmt.Errorf("decode floor: %w", err)
		}
		if snapshot.AsOfSequence < floor {
			return models.BalanceSnapshot{}, false, nil
		}
	}
	return snapshot, true, nil
}

func (r *Redis) Put(ctx context.Context, snapshot models.BalanceSnapshot) (bool, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}

	stored, err := putScript.Run(ctx, r.client, []string{key(snapshot.AccountID)},
		snapshot.AsOfSequence, string(raw), int64(r.ttl.Seconds())).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis put snapshot: %w", err)
	}
	return stored == 1, nil
}

func (r *Redis) Invalidate(ctx context.Context, accountID string, floor int64) error {
	err := invalidateScript.Run(ctx, r.client, []string{key(accountID)}, floor, int64(r.ttl.Seconds())).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

var _ interfaces.BalanceCache = (*Redis)(nil)
