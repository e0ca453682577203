package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/ledger-reconciliation-engine/internal/interfaces"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/metrics"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/models/events"
	"github.com/sheikh-saqib/ledger-reconciliation-engine/internal/storage"
)

// Latest asks Recompute for the balance at the account's current head.
const Latest int64 = -1

// publishTimeout bounds the delivery of one committed batch to the feed.
const publishTimeout = 5 * time.Second

// Options wires the engine to its collaborators.
// Store, Accounts, Cache and Locker are required.
type Options struct {
	Store     interfaces.EventStore
	Accounts  interfaces.AccountStore
	Cache     interfaces.BalanceCache
	Locker    interfaces.AccountLocker
	Publisher interfaces.EventPublisher // optional
	Metrics   *metrics.Metrics          // optional
	Logger    *zap.Logger               // optional
	Scales    CurrencyScales
	Now       func() time.Time

	// FullReplay makes every recompute start from sequence zero
	// instead of the last cached snapshot.
	FullReplay bool
}

// Ledger is the reconciliation engine. It is the only writer of the event
// log and keeps the balance cache in step with it.
type Ledger struct {
	store      interfaces.EventStore
	accounts   interfaces.AccountStore
	cache      interfaces.BalanceCache
	locker     interfaces.AccountLocker
	publisher  interfaces.EventPublisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
	scales     CurrencyScales
	now        func() time.Time
	fullReplay bool

	mu      sync.Mutex
	stale   map[string]int64   // accounts whose cache invalidation failed, with the floor to retry
	flagged map[string]*Report // accounts with an unresolved verification mismatch
}

// NewLedger builds an engine from opts.
func NewLedger(opts Options) *Ledger {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:      opts.Store,
		accounts:   opts.Accounts,
		cache:      opts.Cache,
		locker:     opts.Locker,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("component", "ledger")),
		scales:     opts.Scales,
		now:        now,
		fullReplay: opts.FullReplay,
		stale:      make(map[string]int64),
		flagged:    make(map[string]*Report),
	}
}

// Result describes a committed (or replayed) posting.
type Result struct {
	EventID                    string          `json:"event_id"`
	SequenceNumber             int64           `json:"sequence_number"`
	CounterpartySequenceNumber int64           `json:"counterparty_sequence_number,omitempty"`
	Balance                    decimal.Decimal `json:"balance"` // source account balance right after the event
	Replayed                   bool            `json:"replayed"`
}

// RegisterAccount creates an account. Registering the same id again with
// the same attributes returns the existing account and created=false.
func (l *Ledger) RegisterAccount(ctx context.Context, account models.Account) (models.Account, bool, error) {
	if err := validateAccount(account); err != nil {
		return models.Account{}, false, err
	}
	account.CreatedAt = l.now().UTC().Truncate(time.Microsecond)

	err := l.accounts.CreateAccount(ctx, account)
	if err == nil {
		l.logger.Info("account registered",
			zap.String("account_id", account.ID),
			zap.String("currency", account.Currency))
		return account, true, nil
	}
	if !errors.Is(err, storage.ErrAccountExists) {
		return models.Account{}, false, fmt.Errorf("register account %s: %w", account.ID, err)
	}

	existing, err := l.GetAccount(ctx, account.ID)
	if err != nil {
		return models.Account{}, false, err
	}
	if existing.Currency != account.Currency || existing.AllowNegative != account.AllowNegative {
		return models.Account{}, false, invalid("account_id", "%s is already registered with different attributes", account.ID)
	}
	return existing, false, nil
}

// GetAccount returns a registered account or ErrAccountNotFound.
func (l *Ledger) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	account, err := l.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return account, nil
}

// ListAccounts returns every registered account.
func (l *Ledger) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return l.accounts.ListAccounts(ctx)
}

// Head returns the account's last committed sequence number.
func (l *Ledger) Head(ctx context.Context, accountID string) (int64, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return l.store.Head(ctx, accountID)
}

// SequenceAt returns the last sequence committed at or before at, 0 if none.
func (l *Ledger) SequenceAt(ctx context.Context, accountID string, at time.Time) (int64, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return l.store.SequenceAt(ctx, accountID, at)
}

// History returns the account's events between from and to inclusive.
// A non-positive to reads through the head.
func (l *Ledger) History(ctx context.Context, accountID string, from, to int64) ([]models.LedgerEvent, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if from < 1 {
		from = 1
	}
	if to > 0 && to < from {
		return nil, invalid("to_seq", "must not be below from_seq")
	}
	return l.store.Read(ctx, accountID, from, to)
}

// Apply validates a posting and appends it to the log. Transfers append
// both legs atomically. A posting whose event id was already committed
// returns the original result with Replayed set.
func (l *Ledger) Apply(ctx context.Context, p models.Posting) (Result, error) {
	res, err := l.apply(ctx, p)
	switch {
	case err != nil:
		l.metrics.ApplyError(Classify(err))
	case !res.Replayed:
		l.metrics.EventApplied(string(p.Kind))
	}
	return res, err
}

func (l *Ledger) apply(ctx context.Context, p models.Posting) (Result, error) {
	if err := validateShape(p); err != nil {
		return Result{}, err
	}
	if res, ok, err := l.replay(ctx, p); ok || err != nil {
		return res, err
	}

	source, err := l.GetAccount(ctx, p.AccountID)
	if err != nil {
		return Result{}, err
	}
	var counter *models.Account
	if p.Kind == models.KindTransfer {
		c, err := l.GetAccount(ctx, p.CounterpartyAccountID)
		if err != nil {
			return Result{}, err
		}
		counter = &c
	}
	if err := validateAccounts(p, source, counter, l.scales); err != nil {
		return Result{}, err
	}

	started := time.Now()
	unlock, err := l.locker.Lock(ctx, p.Touched()...)
	l.metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			l.logger.Warn("account lock timed out",
				zap.String("event_id", p.EventID),
				zap.Strings("accounts", p.Touched()))
		}
		return Result{}, err
	}
	defer unlock()

	// Another writer may have committed the same id while we waited.
	if res, ok, err := l.replay(ctx, p); ok || err != nil {
		return res, err
	}

	src, err := l.position(ctx, p.AccountID)
	if err != nil {
		return Result{}, err
	}
	if p.ExpectedSequence != nil && *p.ExpectedSequence != src.head+1 {
		return Result{}, &OutOfOrderError{AccountID: p.AccountID, Expected: src.head + 1, Got: *p.ExpectedSequence}
	}

	balance := src.balance.Add(p.Amount)
	if requiresCover(p.Kind) && !source.AllowNegative && balance.IsNegative() {
		return Result{}, &InsufficientBalanceError{AccountID: p.AccountID, Balance: src.balance, Amount: p.Amount}
	}

	ts := l.now().UTC().Truncate(time.Microsecond)
	if ts.Before(src.last) {
		ts = src.last
	}

	batch := []models.LedgerEvent{{
		EventID:               p.EventID,
		AccountID:             p.AccountID,
		Kind:                  p.Kind,
		Amount:                p.Amount,
		CounterpartyAccountID: p.CounterpartyAccountID,
		CorrelationID:         p.EventID,
		SequenceNumber:        src.head + 1,
	}}
	snapshots := []models.BalanceSnapshot{{AccountID: p.AccountID, Balance: balance, AsOfSequence: src.head + 1}}

	if counter != nil {
		dst, err := l.position(ctx, counter.ID)
		if err != nil {
			return Result{}, err
		}
		if ts.Before(dst.last) {
			ts = dst.last
		}
		batch = append(batch, models.LedgerEvent{
			EventID:               models.CounterLegID(p.EventID),
			AccountID:             counter.ID,
			Kind:                  models.KindTransfer,
			Amount:                p.Amount.Neg(),
			CounterpartyAccountID: p.AccountID,
			CorrelationID:         p.EventID,
			SequenceNumber:        dst.head + 1,
		})
		snapshots = append(snapshots, models.BalanceSnapshot{
			AccountID:    counter.ID,
			Balance:      dst.balance.Add(p.Amount.Neg()),
			AsOfSequence: dst.head + 1,
		})
	}
	for i := range batch {
		batch[i].Timestamp = ts
		snapshots[i].ComputedAt = ts
	}

	seqs, err := l.store.AppendAll(ctx, batch)
	if errors.Is(err, storage.ErrDuplicateEvent) {
		// Committed by another instance between our check and the append.
		if res, ok, rerr := l.replay(ctx, p); ok || rerr != nil {
			return res, rerr
		}
	}
	if err != nil {
		return Result{}, err
	}

	l.refresh(ctx, snapshots...)
	// The log and cache are settled; a slow broker must not hold the accounts.
	unlock()
	l.publish(ctx, batch, snapshots)

	res := Result{EventID: p.EventID, SequenceNumber: seqs[0], Balance: balance}
	if len(seqs) > 1 {
		res.CounterpartySequenceNumber = seqs[1]
	}
	l.logger.Debug("event committed",
		zap.String("event_id", p.EventID),
		zap.String("account_id", p.AccountID),
		zap.String("kind", string(p.Kind)),
		zap.Int64("sequence_number", res.SequenceNumber))
	return res, nil
}

// requiresCover reports whether a debit of this kind must be covered by the
// balance. Fees are accrued even when they overdraw the account.
func requiresCover(kind models.EventKind) bool {
	return kind == models.KindWithdrawal || kind == models.KindTransfer
}

type position struct {
	head    int64
	balance decimal.Decimal
	last    time.Time // timestamp of the head event
}

// position reads an account's head, balance and last timestamp.
// Callers hold the account lock.
func (l *Ledger) position(ctx context.Context, accountID string) (position, error) {
	head, err := l.store.Head(ctx, accountID)
	if err != nil {
		return position{}, err
	}
	pos := position{head: head, balance: decimal.Zero}
	if head == 0 {
		return pos, nil
	}
	snap, err := l.recompute(ctx, accountID, head, head)
	if err != nil {
		return position{}, err
	}
	pos.balance = snap.Balance

	last, err := l.store.Read(ctx, accountID, head, head)
	if err != nil {
		return position{}, err
	}
	if len(last) == 1 {
		pos.last = last[0].Timestamp
	}
	return pos, nil
}

// replay looks up a committed event id. ok is true when p was already
// applied; reusing the id for a different posting is a validation error.
func (l *Ledger) replay(ctx context.Context, p models.Posting) (Result, bool, error) {
	prior, err := l.store.GetByEventID(ctx, p.EventID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("look up event %s: %w", p.EventID, err)
	}
	if !samePosting(prior, p) {
		return Result{}, false, invalid("event_id", "%s was already used for a different event", p.EventID)
	}

	res := Result{EventID: prior.EventID, SequenceNumber: prior.SequenceNumber, Replayed: true}
	if prior.Kind == models.KindTransfer {
		leg, err := l.store.GetByEventID(ctx, models.CounterLegID(prior.EventID))
		if err != nil {
			return Result{}, false, fmt.Errorf("look up counter leg of %s: %w", prior.EventID, err)
		}
		res.CounterpartySequenceNumber = leg.SequenceNumber
	}

	head, err := l.store.Head(ctx, prior.AccountID)
	if err != nil {
		return Result{}, false, err
	}
	snap, err := l.recompute(ctx, prior.AccountID, prior.SequenceNumber, head)
	if err != nil {
		return Result{}, false, err
	}
	res.Balance = snap.Balance

	l.logger.Debug("event replayed", zap.String("event_id", p.EventID))
	return res, true, nil
}

// refresh invalidates and then repopulates the cache for freshly committed
// snapshots. It runs after the commit, so the caller's cancellation is
// ignored; failures mark the account stale instead of failing the apply.
func (l *Ledger) refresh(ctx context.Context, snapshots ...models.BalanceSnapshot) {
	ctx = context.WithoutCancel(ctx)
	for _, snap := range snapshots {
		if err := l.cache.Invalidate(ctx, snap.AccountID, snap.AsOfSequence); err != nil {
			l.metrics.CacheError("invalidate")
			l.logger.Warn("cache invalidation failed",
				zap.String("account_id", snap.AccountID),
				zap.Int64("floor", snap.AsOfSequence),
				zap.Error(err))
			l.markStale(snap.AccountID, snap.AsOfSequence)
			continue
		}
		l.clearStale(snap.AccountID, snap.AsOfSequence)

		if l.Flagged(snap.AccountID) {
			continue
		}
		l.put(ctx, snap)
	}
}

func (l *Ledger) put(ctx context.Context, snap models.BalanceSnapshot) {
	if _, err := l.cache.Put(ctx, snap); err != nil {
		l.metrics.CacheError("put")
		l.logger.Warn("cache put failed",
			zap.String("account_id", snap.AccountID),
			zap.Int64("as_of_sequence", snap.AsOfSequence),
			zap.Error(err))
	}
}

func (l *Ledger) publish(ctx context.Context, batch []models.LedgerEvent, snapshots []models.BalanceSnapshot) {
	if l.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for i, e := range batch {
		msg := events.EventCommitted{
			EventID:               e.EventID,
			CorrelationID:         e.CorrelationID,
			AccountID:             e.AccountID,
			Kind:                  string(e.Kind),
			Amount:                e.Amount,
			CounterpartyAccountID: e.CounterpartyAccountID,
			SequenceNumber:        e.SequenceNumber,
			Balance:               snapshots[i].Balance,
			OccurredAt:            e.Timestamp,
		}
		if err := l.publisher.Publish(ctx, e.AccountID, msg); err != nil {
			l.logger.Warn("publish committed event failed",
				zap.String("event_id", e.EventID),
				zap.Error(err))
		}
	}
}

func (l *Ledger) markStale(accountID string, floor int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if floor > l.stale[accountID] {
		l.stale[accountID] = floor
	}
}

func (l *Ledger) clearStale(accountID string, floor int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pending, ok := l.stale[accountID]; ok && floor >= pending {
		delete(l.stale, accountID)
	}
}

// CacheTrusted reports whether cached snapshots for the account may be
// served. It is false while an invalidation is pending or the account is
// flagged.
func (l *Ledger) CacheTrusted(accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, stale := l.stale[accountID]
	_, flagged := l.flagged[accountID]
	return !stale && !flagged
}

// RetryInvalidations replays failed cache invalidations and returns how
// many accounts are still pending.
func (l *Ledger) RetryInvalidations(ctx context.Context) (int, error) {
	l.mu.Lock()
	pending := make(map[string]int64, len(l.stale))
	for id, floor := range l.stale {
		pending[id] = floor
	}
	l.mu.Unlock()

	var errs []error
	for id, floor := range pending {
		if err := l.cache.Invalidate(ctx, id, floor); err != nil {
			l.metrics.CacheError("invalidate")
			errs = append(errs, fmt.Errorf("invalidate %s: %w", id, err))
			continue
		}
		l.clearStale(id, floor)
	}

	l.mu.Lock()
	remaining := len(l.stale)
	l.mu.Unlock()
	return remaining, errors.Join(errs...)
}

func (l *Ledger) flag(report *Report) {
	l.mu.Lock()
	l.flagged[report.AccountID] = report
	n := len(l.flagged)
	l.mu.Unlock()
	l.metrics.SetFlagged(n)
}

// Flagged reports whether the account has an unresolved mismatch.
func (l *Ledger) Flagged(accountID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.flagged[accountID]
	return ok
}

// FlaggedAccounts returns the flagged account ids, sorted.
func (l *Ledger) FlaggedAccounts() []string {
	l.mu.Lock()
	ids := make([]string, 0, len(l.flagged))
	for id := range l.flagged {
		ids = append(ids, id)
	}
	l.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// ClearFlag marks an operator-reviewed account as resolved and rebuilds
// its cache entry from a full replay.
func (l *Ledger) ClearFlag(ctx context.Context, accountID string) (bool, error) {
	l.mu.Lock()
	_, ok := l.flagged[accountID]
	delete(l.flagged, accountID)
	n := len(l.flagged)
	l.mu.Unlock()
	if !ok {
		return false, nil
	}
	l.metrics.SetFlagged(n)
	l.logger.Info("account flag cleared", zap.String("account_id", accountID))

	head, err := l.store.Head(ctx, accountID)
	if err != nil {
		return true, err
	}
	snap, err := l.replayFrom(ctx, zeroSnapshot(accountID), head)
	if err != nil {
		return true, err
	}
	l.put(ctx, snap)
	return true, nil
}
