package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"salvadanaio/internal/cache"
	"salvadanaio/internal/core"
	"salvadanaio/internal/ledger"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/remote"
	"salvadanaio/internal/store"
)

// ConflictPolicy decides whether a snapshot arriving from the remote store
// replaces the one held in memory.
type ConflictPolicy string

const (
	// PolicyRevision accepts only strictly newer revisions.
	PolicyRevision ConflictPolicy = "revision"
	// PolicyArrival accepts whatever arrives last.
	PolicyArrival ConflictPolicy = "arrival"
)

// LocalCache is the durable local copy of the profile. LoadProfile reports a
// missing profile with an error wrapping core.ErrNotFound.
type LocalCache interface {
	LoadProfile(ctx context.Context, id string) (core.Profile, error)
	SaveProfile(ctx context.Context, p core.Profile) error
}

// Outbox remembers revisions that still have to reach the remote store.
type Outbox interface {
	EnqueueSync(ctx context.Context, profileID string, revision uint64) (int64, error)
	CompleteSyncsThrough(ctx context.Context, profileID string, revision uint64) (int64, error)
}

// RemoteFeed is the part of the remote store the service reads from.
type RemoteFeed interface {
	remote.Subscriber
	remote.Deleter
}

type Config struct {
	ProfileID      string
	ConflictPolicy ConflictPolicy
	PushTimeout    time.Duration
	PushStatusTTL  time.Duration
	PushStatusSize int
}

func DefaultConfig(profileID string) Config {
	return Config{
		ProfileID:      profileID,
		ConflictPolicy: PolicyRevision,
		PushTimeout:    10 * time.Second,
		PushStatusTTL:  10 * time.Minute,
		PushStatusSize: 256,
	}
}

type Option func(*LedgerService)

func WithLogger(l *applog.Logger) Option {
	return func(s *LedgerService) { s.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *LedgerService) { s.newID = gen }
}

// LedgerService applies ledger commands to the in-memory store and keeps the
// local cache and the remote store in step with it.
type LedgerService struct {
	store  *store.Store
	local  LocalCache
	outbox Outbox
	feed   RemoteFeed
	pusher Pusher
	cfg    Config

	logger     *applog.Logger
	structured *applog.StructuredLogger
	now        func() time.Time
	newID      func() string

	// serializes store transitions with their local writes
	writeMu sync.Mutex
	// serializes pushes so the remote never goes back in revision
	pushMu sync.Mutex
	// highest revision known to be held remotely
	remoteRev atomic.Uint64

	statuses *cache.LRUCache[PushStatus]
	inflight sync.WaitGroup
}

func NewLedgerService(st *store.Store, local LocalCache, outbox Outbox, feed RemoteFeed, pusher Pusher, cfg Config, opts ...Option) *LedgerService {
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = PolicyRevision
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	if cfg.PushStatusTTL <= 0 {
		cfg.PushStatusTTL = 10 * time.Minute
	}
	if cfg.PushStatusSize <= 0 {
		cfg.PushStatusSize = 256
	}

	s := &LedgerService{
		store:  st,
		local:  local,
		outbox: outbox,
		feed:   feed,
		pusher: pusher,
		cfg:    cfg,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentSync,
		})
	}
	s.structured = applog.NewStructuredLogger(s.logger)
	s.statuses = cache.NewLRUCache[PushStatus](cfg.PushStatusSize, cfg.PushStatusTTL,
		cache.WithClock[PushStatus](s.now))
	return s
}

// StatusCache exposes the push status cache so it can be swept periodically.
func (s *LedgerService) StatusCache() cache.Cleaner { return s.statuses }

// Snapshot returns the current in-memory profile.
func (s *LedgerService) Snapshot() core.Profile { return s.store.Get() }

func (s *LedgerService) MonthOverview(year, month int) (core.MonthOverview, error) {
	if month < 1 || month > 12 {
		return core.MonthOverview{}, core.ValidationError("month_overview", "", fmt.Errorf("month %d out of range", month))
	}
	return ledger.MonthOverview(s.store.Get(), year, month), nil
}

func (s *LedgerService) NetWorth() core.Money {
	return ledger.NetWorth(s.store.Get())
}

func (s *LedgerService) AccountHistory(accountID string) ([]core.BalancePoint, error) {
	return ledger.AccountHistory(s.store.Get(), accountID)
}

func (s *LedgerService) AddTransaction(ctx context.Context, tx core.Transaction) (*Result, error) {
	if tx.ID == "" {
		tx.ID = s.newID()
	}
	tx.CreatedAt = s.now().UTC()
	return s.run(ctx, ledger.AddTransactionCmd{Tx: tx}, tx.ID)
}

// UpdateTransaction replaces the transaction with the same ID. Its original
// CreatedAt is kept.
func (s *LedgerService) UpdateTransaction(ctx context.Context, tx core.Transaction) (*Result, error) {
	return s.run(ctx, ledger.UpdateTransactionCmd{Tx: tx}, tx.ID)
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) (*Result, error) {
	return s.run(ctx, ledger.DeleteTransactionCmd{ID: id}, id)
}

func (s *LedgerService) TransferBetweenAccounts(ctx context.Context, fromID, toID string, amount core.Money) (*Result, error) {
	return s.run(ctx, ledger.TransferCmd{FromID: fromID, ToID: toID, Amount: amount}, "")
}

// ContributeToGoal records the contribution as an expense on accountID. A
// zero date means today.
func (s *LedgerService) ContributeToGoal(ctx context.Context, goalID, accountID string, amount core.Money, date core.Date) (*Result, error) {
	now := s.now().UTC()
	if date.IsZero() {
		date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	}
	c := ledger.Contribution{
		GoalID:        goalID,
		AccountID:     accountID,
		Amount:        amount,
		TransactionID: s.newID(),
		Date:          date,
		CreatedAt:     now,
	}
	return s.run(ctx, ledger.ContributeCmd{Contribution: c}, c.TransactionID)
}

func (s *LedgerService) AddAccount(ctx context.Context, a core.Account) (*Result, error) {
	if a.ID == "" {
		a.ID = s.newID()
	}
	a.CreatedAt = s.now().UTC()
	return s.run(ctx, ledger.AddAccountCmd{Account: a}, a.ID)
}

func (s *LedgerService) UpdateAccount(ctx context.Context, a core.Account) (*Result, error) {
	return s.run(ctx, ledger.UpdateAccountCmd{Account: a}, a.ID)
}

// DeleteAccount removes the account together with its transactions.
func (s *LedgerService) DeleteAccount(ctx context.Context, id string) (*Result, error) {
	removed := ledger.CountTransactions(s.store.Get(), id)
	res, err := s.run(ctx, ledger.DeleteAccountCmd{ID: id}, id)
	if err == nil && removed > 0 {
		s.logger.InfoContext(ctx, "Account deleted with its transactions",
			applog.FieldAccountID, id,
			"transactions_removed", removed)
	}
	return res, err
}

func (s *LedgerService) AddCategory(ctx context.Context, c core.Category) (*Result, error) {
	if c.ID == "" {
		c.ID = s.newID()
	}
	c.CreatedAt = s.now().UTC()
	return s.run(ctx, ledger.AddCategoryCmd{Category: c}, c.ID)
}

func (s *LedgerService) UpdateCategory(ctx context.Context, c core.Category) (*Result, error) {
	return s.run(ctx, ledger.UpdateCategoryCmd{Category: c}, c.ID)
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id string) (*Result, error) {
	return s.run(ctx, ledger.DeleteCategoryCmd{ID: id}, id)
}

func (s *LedgerService) AddSavingsGoal(ctx context.Context, g core.SavingsGoal) (*Result, error) {
	if g.ID == "" {
		g.ID = s.newID()
	}
	g.CreatedAt = s.now().UTC()
	return s.run(ctx, ledger.AddGoalCmd{Goal: g}, g.ID)
}

func (s *LedgerService) UpdateSavingsGoal(ctx context.Context, g core.SavingsGoal) (*Result, error) {
	return s.run(ctx, ledger.UpdateGoalCmd{Goal: g}, g.ID)
}

func (s *LedgerService) DeleteSavingsGoal(ctx context.Context, id string) (*Result, error) {
	return s.run(ctx, ledger.DeleteGoalCmd{ID: id}, id)
}

// Execute applies an arbitrary ledger command.
func (s *LedgerService) Execute(ctx context.Context, cmd ledger.Command) (*Result, error) {
	return s.run(ctx, cmd, "")
}

// run is the single path every command takes: optimistic in-memory update,
// synchronous local write, asynchronous push.
func (s *LedgerService) run(ctx context.Context, cmd ledger.Command, entityID string) (*Result, error) {
	s.writeMu.Lock()
	next, err := s.store.Update(cmd.Apply)
	if err != nil {
		s.writeMu.Unlock()
		s.logger.WarnContext(ctx, "Command rejected",
			applog.FieldCommand, cmd.Name(),
			applog.FieldEntityID, entityID,
			applog.FieldErrorKind, string(core.KindOf(err)),
			applog.FieldError, err)
		return nil, err
	}
	localErr := s.local.SaveProfile(ctx, next)
	s.writeMu.Unlock()

	if localErr != nil {
		localErr = fmt.Errorf("save local snapshot: %w", localErr)
		s.logger.ErrorContext(ctx, "Failed to write local snapshot",
			applog.FieldCommand, cmd.Name(),
			applog.FieldProfileID, next.ID,
			applog.FieldRevision, next.Revision,
			applog.FieldError, localErr)
	}
	s.structured.LogCommandApplied(ctx, cmd.Name(), entityID, next.ID, next.Revision)

	return &Result{
		Revision: next.Revision,
		ID:       entityID,
		Profile:  next,
		LocalErr: localErr,
		Push:     s.schedulePush(next),
	}, nil
}

// Close waits for in-flight pushes to finish or ctx to expire.
func (s *LedgerService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
