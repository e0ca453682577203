// Package workers runs the engine's background jobs.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
)

// Engine is the part of the engine the sweep drives.
type Engine interface {
	RetryInvalidations(ctx context.Context) (int, error)
	VerifyAll(ctx context.Context) (ledger.Sweep, error)
}

// Reconciler periodically retries failed cache invalidations and verifies
// every account against its full log.
type Reconciler struct {
	engine   Engine
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	sched gocron.Scheduler
}

func NewReconciler(engine Engine, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		engine:   engine,
		interval: interval,
		timeout:  interval,
		logger:   logger.With(zap.String("component", "reconciler")),
	}
}

// Start schedules the sweep. Runs never overlap; a run still going when the
// next one is due skips that slot.
func (r *Reconciler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			r.RunOnce(runCtx)
		}),
		gocron.WithName("reconciliation-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	r.sched = sched
	r.logger.Info("reconciliation sweep scheduled", zap.Duration("interval", r.interval))
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}

// RunOnce performs one sweep and returns its summary.
func (r *Reconciler) RunOnce(ctx context.Context) ledger.Sweep {
	started := time.Now()

	pending, err := r.engine.RetryInvalidations(ctx)
	if err != nil {
		r.logger.Warn("cache invalidation retry failed", zap.Int("pending", pending), zap.Error(err))
	}

	sweep, err := r.engine.VerifyAll(ctx)
	if err != nil {
		r.logger.Warn("verification sweep interrupted", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("accounts", sweep.Accounts),
		zap.Int("consistent", sweep.Consistent),
		zap.Int("mismatched", sweep.Mismatched),
		zap.Int("failed", sweep.Failed),
		zap.Duration("took", time.Since(started)),
	}
	if sweep.Mismatched > 0 {
		r.logger.Error("reconciliation sweep found mismatches", fields...)
	} else {
		r.logger.Info("reconciliation sweep finished", fields...)
	}
	return sweep
}
