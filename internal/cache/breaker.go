package cache

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// BreakerConfig tunes the circuit breaker in front of a remote cache.
type BreakerConfig struct {
	MaxRequests         uint32        // probes allowed while half-open
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open-state duration before probing
	ConsecutiveFailures uint32
}

// DefaultBreakerConfig trips after five straight failures and probes after 10s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            30 * time.Second,
		Timeout:             10 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Breaker fails fast when the wrapped cache is unhealthy. An open breaker
// returns gobreaker.ErrOpenState, which callers treat like any cache error.
type Breaker struct {
	next interfaces.BalanceCache
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next interfaces.BalanceCache, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "balance-cache",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

type getResult struct {
	snapshot models.BalanceSnapshot
	ok       bool
}

func (b *Breaker) Get(ctx context.Context, accountID string) (models.BalanceSnapshot, bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		snapshot, ok, err := b.next.Get(ctx, accountID)
		return getResult{snapshot: snapshot, ok: ok}, err
	})
	if err != nil {
		return models.BalanceSnapshot{}, false, err
	}
	r := res.(getResult)
	return r.snapshot, r.ok, nil
}

func (b *Breaker) Put(ctx context.Context, snapshot models.BalanceSnapshot) (bool, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Put(ctx, snapshot)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

func (b *Breaker) Invalidate(ctx context.Context, accountID string, floor int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Invalidate(ctx, accountID, floor)
	})
	return err
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

var _ interfaces.BalanceCache = (*Breaker)(nil)
