// Package query answers balance questions at the boundary, serving fresh
// cache entries and falling back to the engine's replay otherwise.
package query

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/ledger"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/metrics"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
)

// Engine is the part of the reconciliation engine the service reads from.
type Engine interface {
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	Head(ctx context.Context, accountID string) (int64, error)
	SequenceAt(ctx context.Context, accountID string, at time.Time) (int64, error)
	Recompute(ctx context.Context, accountID string, asOf int64) (models.BalanceSnapshot, error)
	CacheTrusted(accountID string) bool
}

type asOfKind int

const (
	asOfLatest asOfKind = iota
	asOfTime
	asOfSequence
)

// AsOf selects the point in an account's history to read.
type AsOf struct {
	kind asOfKind
	at   time.Time
	seq  int64
}

// Latest reads the current head.
func Latest() AsOf { return AsOf{kind: asOfLatest} }

// AtTime reads the last sequence committed at or before t.
func AtTime(t time.Time) AsOf { return AsOf{kind: asOfTime, at: t} }

// AtSequence reads an explicit sequence number.
func AtSequence(seq int64) AsOf { return AsOf{kind: asOfSequence, seq: seq} }

// ParseAsOf reads the as_of and as_of_sequence query parameters.
// At most one may be set; "" and "latest" mean the head.
func ParseAsOf(asOf, asOfSequence string) (AsOf, error) {
	if asOfSequence != "" {
		if asOf != "" && asOf != "latest" {
			return AsOf{}, &ledger.ValidationError{Field: "as_of", Reason: "cannot be combined with as_of_sequence"}
		}
		seq, err := strconv.ParseInt(asOfSequence, 10, 64)
		if err != nil || seq < 0 {
			return AsOf{}, &ledger.ValidationError{Field: "as_of_sequence", Reason: "must be a non-negative integer"}
		}
		return AtSequence(seq), nil
	}
	if asOf == "" || asOf == "latest" {
		return Latest(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, asOf)
	if err != nil {
		return AsOf{}, &ledger.ValidationError{Field: "as_of", Reason: "must be \"latest\" or an RFC3339 time"}
	}
	return AtTime(t), nil
}

// Source says where a balance came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceReplay Source = "replay"
)

// Balance is the answer to a balance query.
type Balance struct {
	AccountID    string          `json:"account_id"`
	Balance      decimal.Decimal `json:"balance"`
	AsOfSequence int64           `json:"as_of_sequence_number"`
	Currency     string          `json:"currency"`
	Source       Source          `json:"source"`
}

// Service is the Query Service.
type Service struct {
	engine  Engine
	cache   interfaces.BalanceCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewService(engine Engine, cache interfaces.BalanceCache, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:  engine,
		cache:   cache,
		metrics: m,
		logger:  logger.With(zap.String("component", "query")),
	}
}

// GetBalance returns the balance at asOf. Only latest reads are served from
// the cache, and only when the cached snapshot is at the head.
func (s *Service) GetBalance(ctx context.Context, accountID string, asOf AsOf) (Balance, error) {
	account, err := s.engine.GetAccount(ctx, accountID)
	if err != nil {
		return Balance{}, err
	}
	out := Balance{AccountID: accountID, Currency: account.Currency}

	switch asOf.kind {
	case asOfLatest:
		if snap, ok := s.fromCache(ctx, accountID); ok {
			out.Balance, out.AsOfSequence, out.Source = snap.Balance, snap.AsOfSequence, SourceCache
			return out, nil
		}
		return s.replay(ctx, out, ledger.Latest)

	case asOfTime:
		seq, err := s.engine.SequenceAt(ctx, accountID, asOf.at)
		if err != nil {
			return Balance{}, err
		}
		return s.replay(ctx, out, seq)

	default:
		return s.replay(ctx, out, asOf.seq)
	}
}

func (s *Service) replay(ctx context.Context, out Balance, seq int64) (Balance, error) {
	snap, err := s.engine.Recompute(ctx, out.AccountID, seq)
	if err != nil {
		return Balance{}, err
	}
	out.Balance, out.AsOfSequence, out.Source = snap.Balance, snap.AsOfSequence, SourceReplay
	return out, nil
}

// fromCache returns the cached snapshot when it reflects the head.
func (s *Service) fromCache(ctx context.Context, accountID string) (models.BalanceSnapshot, bool) {
	if !s.engine.CacheTrusted(accountID) {
		s.metrics.CacheLookup("bypass")
		return models.BalanceSnapshot{}, false
	}
	snap, ok, err := s.cache.Get(ctx, accountID)
	if err != nil {
		s.metrics.CacheError("get")
		s.logger.Warn("cache get failed", zap.String("account_id", accountID), zap.Error(err))
		return models.BalanceSnapshot{}, false
	}
	if !ok {
		s.metrics.CacheLookup("miss")
		return models.BalanceSnapshot{}, false
	}

	head, err := s.engine.Head(ctx, accountID)
	if err != nil || snap.AsOfSequence != head {
		s.metrics.CacheLookup("miss")
		return models.BalanceSnapshot{}, false
	}
	s.metrics.CacheLookup("hit")
	return snap, true
}
