package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"salvadanaio/internal/cache"
	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/middleware/ratelimit"
	"salvadanaio/internal/middleware/security"
	"salvadanaio/internal/middleware/trace"
	"salvadanaio/internal/services"
	"salvadanaio/internal/storage"
)

// Ledger is the command and read surface the API serves.
type Ledger interface {
	Snapshot() core.Profile
	MonthOverview(year, month int) (core.MonthOverview, error)
	NetWorth() core.Money
	AccountHistory(accountID string) ([]core.BalancePoint, error)
	Watch(fn func(core.Profile)) (cancel func())
	PushStatus(revision uint64) (services.PushStatus, bool)

	AddTransaction(ctx context.Context, tx core.Transaction) (*services.Result, error)
	UpdateTransaction(ctx context.Context, tx core.Transaction) (*services.Result, error)
	DeleteTransaction(ctx context.Context, id string) (*services.Result, error)
	TransferBetweenAccounts(ctx context.Context, fromID, toID string, amount core.Money) (*services.Result, error)
	ContributeToGoal(ctx context.Context, goalID, accountID string, amount core.Money, date core.Date) (*services.Result, error)
	AddAccount(ctx context.Context, a core.Account) (*services.Result, error)
	UpdateAccount(ctx context.Context, a core.Account) (*services.Result, error)
	DeleteAccount(ctx context.Context, id string) (*services.Result, error)
	AddCategory(ctx context.Context, c core.Category) (*services.Result, error)
	UpdateCategory(ctx context.Context, c core.Category) (*services.Result, error)
	DeleteCategory(ctx context.Context, id string) (*services.Result, error)
	AddSavingsGoal(ctx context.Context, g core.SavingsGoal) (*services.Result, error)
	UpdateSavingsGoal(ctx context.Context, g core.SavingsGoal) (*services.Result, error)
	DeleteSavingsGoal(ctx context.Context, id string) (*services.Result, error)
	Purge(ctx context.Context) (*services.Result, error)
}

// SyncAdmin exposes the outbox to operators.
type SyncAdmin interface {
	Stats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error)
	RetryFailed(ctx context.Context) (int64, error)
	IsRunning() bool
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps http.Server with the ledger API.
type Server struct {
	http.Server

	ledger    Ledger
	syncAdmin SyncAdmin
	local     Pinger

	logger      *applog.Logger
	currency    string
	waitTimeout time.Duration

	// Middleware components
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	// overviews keyed by revision, so a new snapshot never reads a stale entry
	overviewCache *cache.LRUCache[core.MonthOverview]
	started       time.Time
	now           func() time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPinger adds the local cache to the readiness check.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.local = p }
}

// WithCurrency sets the ISO code used for display amounts.
func WithCurrency(code string) Option {
	return func(s *Server) { s.currency = code }
}

// WithWaitTimeout bounds how long ?wait=1 blocks on a push.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) { s.waitTimeout = d }
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.rateLimiter = ratelimit.NewLimiter(cfg) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. syncAdmin may be nil when no outbox processor runs.
func NewServer(addr string, ledger Ledger, syncAdmin SyncAdmin, opts ...Option) *Server {
	s := &Server{
		ledger:           ledger,
		syncAdmin:        syncAdmin,
		currency:         "EUR",
		waitTimeout:      15 * time.Second,
		securityDetector: security.NewDetector(),
		started:          time.Now(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.traceMiddleware = trace.NewMiddleware(s.logger, s.securityDetector.ExtractClientIP)
	s.overviewCache = cache.NewLRUCache[core.MonthOverview](100, 5*time.Minute)

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	}, http.MethodPost, http.MethodPut, http.MethodDelete)

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.securityDetector.Middleware(true)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Reads
	mux.HandleFunc("GET /profile", s.handleProfile)
	mux.HandleFunc("GET /profile/events", s.handleProfileEvents)
	mux.HandleFunc("DELETE /profile", s.handlePurge)
	mux.HandleFunc("GET /overview", s.handleOverview)
	mux.HandleFunc("GET /networth", s.handleNetWorth)
	mux.HandleFunc("GET /accounts/{id}/history", s.handleAccountHistory)

	// Commands
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("PUT /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("POST /categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("POST /goals", s.handleCreateGoal)
	mux.HandleFunc("PUT /goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /goals/{id}/contributions", s.handleContribute)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /transfers", s.handleTransfer)

	// Sync
	syncLog := applog.ComponentMiddleware(applog.ComponentSync)
	mux.Handle("GET /sync/stats", syncLog(http.HandlerFunc(s.handleSyncStats)))
	mux.Handle("POST /sync/retry", syncLog(http.HandlerFunc(s.handleSyncRetry)))
	mux.Handle("GET /sync/{revision}", syncLog(http.HandlerFunc(s.handleSyncStatus)))
}

// OverviewCache exposes the overview cache so it can be swept periodically.
func (s *Server) OverviewCache() cache.Cleaner { return s.overviewCache }

// Shutdown stops accepting requests, waits for in-flight ones and stops the
// rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
