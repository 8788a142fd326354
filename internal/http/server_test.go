package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
	"salvadanaio/internal/middleware/ratelimit"
	"salvadanaio/internal/remote/memory"
	"salvadanaio/internal/services"
	"salvadanaio/internal/storage"
	"salvadanaio/internal/store"
)

type failingPusher struct{}

func (failingPusher) Push(context.Context, core.Profile) (services.PushState, error) {
	return services.PushFailed, errors.New("remote unreachable")
}

type brokenOutbox struct{}

func (brokenOutbox) Stats(context.Context) (*storage.GetSyncQueueStatsRow, error) {
	return nil, errors.New("database is locked")
}
func (brokenOutbox) RetryFailed(context.Context) (int64, error) {
	return 0, errors.New("database is locked")
}
func (brokenOutbox) IsRunning() bool { return false }

type testEnv struct {
	srv  *Server
	svc  *services.LedgerService
	repo *storage.SQLiteRepository
}

func newTestEnv(t *testing.T, pusher services.Pusher, opts ...Option) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	remoteStore := memory.New()
	if pusher == nil {
		pusher = services.NewRemotePusher(remoteStore)
	}
	quiet := applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: applog.NewHandler(io.Discard, "text", slog.LevelError)})

	cfg := services.DefaultConfig("p1")
	cfg.PushTimeout = time.Second
	svc := services.NewLedgerService(store.New(core.NewProfile("p1")), repo, repo, remoteStore, pusher, cfg,
		services.WithLogger(quiet))
	if _, err := svc.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Close(ctx)
	})

	proc := services.NewSyncProcessor(repo, svc, services.DefaultSyncProcessorConfig())
	opts = append([]Option{WithLogger(quiet), WithPinger(repo)}, opts...)
	srv := NewServer(":0", svc, proc, opts...)
	t.Cleanup(srv.rateLimiter.Stop)
	return &testEnv{srv: srv, svc: svc, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) createAccount(t *testing.T, name, initial string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/accounts?wait=1", `{"name":"`+name+`","initialBalance":"`+initial+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status=%d body=%s", rr.Code, rr.Body.String())
	}
	return decodeBody[commandResponse](t, rr).ID
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
	ready := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/readyz", ""))
	checks := ready["checks"].(map[string]any)
	if checks["local_cache"] != "ok" {
		t.Fatalf("local cache check = %v", checks["local_cache"])
	}

	rr := env.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rr.Body.String(), "snapshot_revision 0") {
		t.Fatalf("metrics missing revision:\n%s", rr.Body.String())
	}
}

func TestCommandLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := env.createAccount(t, "Checking", "100")

	rr := env.do(t, http.MethodPost, "/transactions?wait=1",
		`{"kind":"expense","amount":"25.50","accountId":"`+acc+`","date":"2025-03-01","tags":["food"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add transaction status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody[commandResponse](t, rr)
	if created.Revision != 2 || created.ID == "" {
		t.Fatalf("unexpected response %+v", created)
	}
	if created.Push.State != services.PushDelivered {
		t.Fatalf("push state = %s (%s)", created.Push.State, created.Push.Error)
	}

	profile := decodeBody[core.Profile](t, env.do(t, http.MethodGet, "/profile", ""))
	if got := profile.Accounts[0].Balance; !got.Equal(core.MustMoney("74.50")) {
		t.Fatalf("balance = %s, want 74.50", got)
	}

	ov := decodeBody[overviewView](t, env.do(t, http.MethodGet, "/overview?year=2025&month=3", ""))
	if !ov.Expenses.Equal(core.MustMoney("25.50")) || ov.Revision != 2 {
		t.Fatalf("overview = %+v", ov)
	}
	if !strings.Contains(ov.Display["expenses"], "25.50") {
		t.Fatalf("display = %q", ov.Display["expenses"])
	}
	if env.srv.overviewCache.Size() != 1 {
		t.Fatalf("overview not cached")
	}

	st := decodeBody[services.PushStatus](t, env.do(t, http.MethodGet, "/sync/2", ""))
	if st.State != services.PushDelivered {
		t.Fatalf("sync status = %+v", st)
	}

	rr = env.do(t, http.MethodPut, "/transactions/"+created.ID+"?wait=1",
		`{"kind":"income","amount":"10","accountId":"`+acc+`","date":"2025-03-02"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	profile = decodeBody[core.Profile](t, env.do(t, http.MethodGet, "/profile", ""))
	if got := profile.Accounts[0].Balance; !got.Equal(core.MustMoney("110")) {
		t.Fatalf("balance after update = %s, want 110.00", got)
	}

	rr = env.do(t, http.MethodDelete, "/transactions/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	profile = decodeBody[core.Profile](t, env.do(t, http.MethodGet, "/profile", ""))
	if got := profile.Accounts[0].Balance; !got.Equal(core.MustMoney("100")) {
		t.Fatalf("balance after delete = %s, want 100.00", got)
	}

	history := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/accounts/"+acc+"/history", ""))
	if h, ok := history["history"].([]any); !ok || len(h) != 0 {
		t.Fatalf("history = %v", history["history"])
	}
}

func TestTransferAndContribution(t *testing.T) {
	env := newTestEnv(t, nil)
	from := env.createAccount(t, "Checking", "100")
	to := env.createAccount(t, "Savings", "0")

	rr := env.do(t, http.MethodPost, "/transfers", `{"fromAccountId":"`+from+`","toAccountId":"`+to+`","amount":"40"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("transfer status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/goals", `{"name":"Bike","targetAmount":"300"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("goal status=%d body=%s", rr.Code, rr.Body.String())
	}
	goal := decodeBody[commandResponse](t, rr).ID

	rr = env.do(t, http.MethodPost, "/goals/"+goal+"/contributions", `{"accountId":"`+to+`","amount":"15","date":"2025-04-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("contribution status=%d body=%s", rr.Code, rr.Body.String())
	}

	p := env.svc.Snapshot()
	savings, _ := p.Account(to)
	if !savings.Balance.Equal(core.MustMoney("25")) {
		t.Fatalf("savings balance = %s, want 25.00", savings.Balance)
	}
	g, _ := p.Goal(goal)
	if !g.CurrentAmount.Equal(core.MustMoney("15")) {
		t.Fatalf("goal current = %s, want 15.00", g.CurrentAmount)
	}

	net := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/networth", ""))
	if net["netWorth"] != "85.00" {
		t.Fatalf("net worth = %v", net["netWorth"])
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := env.createAccount(t, "Cash", "10")

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantKind string
	}{
		{"unknown account", http.MethodPost, "/transactions", `{"kind":"expense","amount":"1","accountId":"nope","date":"2025-01-01"}`, http.StatusNotFound, "reference"},
		{"zero amount", http.MethodPost, "/transactions", `{"kind":"expense","amount":"0","accountId":"` + acc + `","date":"2025-01-01"}`, http.StatusBadRequest, "validation"},
		{"bad kind", http.MethodPost, "/transactions", `{"kind":"gift","amount":"1","accountId":"` + acc + `","date":"2025-01-01"}`, http.StatusBadRequest, "validation"},
		{"same account transfer", http.MethodPost, "/transfers", `{"fromAccountId":"` + acc + `","toAccountId":"` + acc + `","amount":"1"}`, http.StatusBadRequest, "validation"},
		{"delete missing goal", http.MethodDelete, "/goals/ghost", "", http.StatusNotFound, "reference"},
		{"id mismatch", http.MethodPut, "/accounts/" + acc, `{"id":"other","name":"X"}`, http.StatusBadRequest, ""},
		{"malformed body", http.MethodPost, "/categories", `{"name":`, http.StatusBadRequest, ""},
		{"month out of range", http.MethodGet, "/overview?month=13", "", http.StatusBadRequest, "validation"},
		{"unknown revision", http.MethodGet, "/sync/999", "", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if body := decodeBody[ErrorBody](t, rr); body.Kind != tt.wantKind {
				t.Fatalf("kind=%q want %q", body.Kind, tt.wantKind)
			}
		})
	}

	if rev := env.svc.Snapshot().Revision; rev != 1 {
		t.Fatalf("rejected commands changed the revision to %d", rev)
	}

	rr := env.do(t, http.MethodGet, "/accounts", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /accounts status=%d, want 405", rr.Code)
	}
}

func TestFailedPushIsAppliedAndQueued(t *testing.T) {
	env := newTestEnv(t, failingPusher{})

	rr := env.do(t, http.MethodPost, "/categories?wait=1", `{"name":"Groceries"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeBody[commandResponse](t, rr)
	if res.Push.State != services.PushFailed || !strings.Contains(res.Push.Error, "remote unreachable") {
		t.Fatalf("push = %+v", res.Push)
	}
	if len(env.svc.Snapshot().Categories) != 1 {
		t.Fatalf("command must stand even though the push failed")
	}

	stats := decodeBody[map[string]any](t, env.do(t, http.MethodGet, "/sync/stats", ""))
	queue := stats["queue"].(map[string]any)
	if queue["pending"] != float64(1) {
		t.Fatalf("outbox = %v", queue)
	}

	rr = env.do(t, http.MethodPost, "/sync/retry", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("retry status=%d", rr.Code)
	}
	if got := decodeBody[map[string]int64](t, rr)["requeued"]; got != 0 {
		t.Fatalf("requeued = %d, want 0 (nothing failed permanently)", got)
	}
}

func TestSyncRouteErrorsLogUnderSyncComponent(t *testing.T) {
	env := newTestEnv(t, nil)
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Component: applog.ComponentHTTP, Handler: applog.NewHandler(&buf, "json", slog.LevelInfo)})
	srv := NewServer(":0", env.svc, brokenOutbox{}, WithLogger(logger))
	t.Cleanup(srv.rateLimiter.Stop)

	req := httptest.NewRequest(http.MethodPost, "/sync/retry", nil)
	req.Header.Set("X-Request-ID", "retry-1")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var found map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("log line is not json: %s", line)
		}
		if entry["msg"] == "Failed to requeue outbox rows" {
			found = entry
		}
	}
	if found == nil {
		t.Fatalf("error was not logged:\n%s", buf.String())
	}
	want := map[string]any{
		applog.FieldComponent: applog.ComponentSync,
		applog.FieldOperation: "sync_retry",
		applog.FieldRequestID: "retry-1",
		applog.FieldError:     "database is locked",
	}
	for k, v := range want {
		if found[k] != v {
			t.Fatalf("%s = %v, want %v (line %v)", k, found[k], v, found)
		}
	}
}

func TestPurgeEmptiesProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createAccount(t, "Cash", "5")

	rr := env.do(t, http.MethodDelete, "/profile", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("purge status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeBody[commandResponse](t, rr)
	if res.Revision != 2 {
		t.Fatalf("revision = %d, want 2", res.Revision)
	}
	if p := env.svc.Snapshot(); len(p.Accounts) != 0 {
		t.Fatalf("accounts left after purge: %v", p.Accounts)
	}
}

func TestProfileEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/profile/events", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	nextID := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if strings.HasPrefix(line, "id: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "id: "))
			}
		}
	}

	if id := nextID(); id != "0" {
		t.Fatalf("first event id = %s, want 0", id)
	}
	env.createAccount(t, "Cash", "1")
	if id := nextID(); id != "1" {
		t.Fatalf("second event id = %s, want 1", id)
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	env := newTestEnv(t, nil, WithRateLimit(ratelimit.Config{RequestsPerMinute: 1, Burst: 1, CleanupInterval: time.Hour}))

	if rr := env.do(t, http.MethodPost, "/categories", `{"name":"A"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/categories", `{"name":"B"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	for i := 0; i < 3; i++ {
		if rr := env.do(t, http.MethodGet, "/profile", ""); rr.Code != http.StatusOK {
			t.Fatalf("read %d status=%d", i, rr.Code)
		}
	}
}
