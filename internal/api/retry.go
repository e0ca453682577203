package api

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
)

// RetryPolicy bounds how often a lock timeout is retried.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.Base > 0 {
		eb.InitialInterval = p.Base
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0))), ctx)
}

// withRetry runs fn until it succeeds, fails with anything other than a
// lock timeout, or the policy gives up. The last error is returned as is.
func withRetry[T any](ctx context.Context, p RetryPolicy, fn func() (T, error)) (T, error) {
	var out T
	err := backoff.Retry(func() error {
		v, err := fn()
		if err == nil {
			out = v
			return nil
		}
		if errors.Is(err, ledger.ErrLockTimeout) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
	return out, err
}
