package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/api"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/cache"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/config"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/locks"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/logging"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/metrics"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/query"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage/memory"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage/postgres"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "ledger")

	// Event store and account registry.
	var (
		store    interfaces.EventStore
		accounts interfaces.AccountStore
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Database.DSN())
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return err
		}
		store, accounts = postgres.NewEventStore(db), postgres.NewAccountStore(db)
	default:
		store, accounts = memory.NewEventStore(), memory.NewAccountStore()
	}

	var rdb redis.UniversalClient
	if cfg.CacheBackend == config.BackendRedis || cfg.LockBackend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr(), DB: cfg.Cache.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.Cache.Addr(), err)
		}
	}

	var balanceCache interfaces.BalanceCache = cache.NewMemory()
	if cfg.CacheBackend == config.BackendRedis {
		balanceCache = cache.NewBreaker(cache.NewRedis(rdb, cfg.Cache.TTL), cache.DefaultBreakerConfig(), logger)
	}

	var locker interfaces.AccountLocker = locks.NewLocalLocker(cfg.LockTimeout)
	if cfg.LockBackend == config.BackendRedis {
		locker = locks.NewRedisLocker(rdb, locks.RedisLockerOptions{
			Timeout: cfg.LockTimeout,
			Expiry:  cfg.LockExpiry,
		}, logger)
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer p.Close()
		publisher = p
	}

	engine := ledger.NewLedger(ledger.Options{
		Store:     store,
		Accounts:  accounts,
		Cache:     balanceCache,
		Locker:    locker,
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
		Scales:    ledger.CurrencyScales(cfg.CurrencyScales),
	})
	queries := query.NewService(engine, balanceCache, m, logger)

	reconciler := workers.NewReconciler(engine, cfg.VerifyInterval, logger)
	if err := reconciler.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = reconciler.Stop() }()

	server := api.NewServer(engine, queries, reg, api.RetryPolicy{
		MaxRetries: cfg.ApplyMaxRetries,
		Base:       cfg.ApplyRetryBase,
	}, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Listen(cfg.HTTPAddr) }()

	logger.Info("ledger engine started",
		zap.String("store", cfg.StoreBackend),
		zap.String("cache", cfg.CacheBackend),
		zap.String("locks", cfg.LockBackend),
		zap.Bool("kafka", publisher != nil))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
