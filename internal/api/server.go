// Package api is the HTTP boundary in front of the reconciliation engine.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/query"
)

// Engine is what the handlers need from the reconciliation engine.
type Engine interface {
	RegisterAccount(ctx context.Context, account models.Account) (models.Account, bool, error)
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	Head(ctx context.Context, accountID string) (int64, error)
	Apply(ctx context.Context, p models.Posting) (ledger.Result, error)
	Verify(ctx context.Context, accountID string) (*ledger.Report, error)
	History(ctx context.Context, accountID string, from, to int64) ([]models.LedgerEvent, error)
	Statement(ctx context.Context, accountID string, from, to time.Time, groupBy ledger.GroupBy) (*ledger.Statement, error)
	Flagged(accountID string) bool
	FlaggedAccounts() []string
	ClearFlag(ctx context.Context, accountID string) (bool, error)
}

// Balances answers balance queries.
type Balances interface {
	GetBalance(ctx context.Context, accountID string, asOf query.AsOf) (query.Balance, error)
}

type Server struct {
	app      *fiber.App
	engine   Engine
	balances Balances
	retry    RetryPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer builds the fiber app and registers every route. gatherer may
// be nil to leave /metrics out.
func NewServer(engine Engine, balances Balances, gatherer prometheus.Gatherer, retry RetryPolicy, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		balances: balances,
		retry:    retry,
		logger:   logger.With(zap.String("component", "api")),
		now:      time.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "ledger-reconciliation-engine",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.app.Post("/accounts", s.createAccount)
	s.app.Get("/accounts/:id", s.getAccount)
	s.app.Get("/accounts/:id/events", s.listEvents)
	s.app.Get("/accounts/:id/statement", s.statement)
	s.app.Delete("/accounts/:id/flag", s.clearFlag)

	s.app.Post("/events", s.postEvent)
	s.app.Get("/balance", s.getBalance)
	s.app.Get("/verify", s.verify)
	s.app.Get("/verify/flagged", s.flagged)

	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.String("class", ledger.Classify(err)),
		zap.Error(err),
	}
	switch statusFor(err) {
	case fiber.StatusInternalServerError:
		s.logger.Error("request failed", fields...)
	case fiber.StatusServiceUnavailable:
		s.logger.Warn("request gave up on account lock", fields...)
	}
	return writeError(c, err)
}
