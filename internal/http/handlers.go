package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"salvadanaio/internal/core"
	applog "salvadanaio/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.local != nil {
		if err := s.local.Ping(ctx); err != nil {
			checks["local_cache"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["local_cache"] = "ok"
		}
	} else {
		checks["local_cache"] = "not_configured"
	}

	if s.syncAdmin != nil {
		if s.syncAdmin.IsRunning() {
			checks["sync_processor"] = "running"
		} else {
			checks["sync_processor"] = "stopped"
		}
	}

	checks["snapshot"] = map[string]any{"revision": s.ledger.Snapshot().Revision}
	checks["cache"] = map[string]any{"overview_entries": s.overviewCache.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()
	snapshot := s.ledger.Snapshot()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("snapshot_revision", "Revision of the in-memory snapshot", "gauge", snapshot.Revision)
	metric("transactions", "Transactions in the snapshot", "gauge", len(snapshot.Transactions))
	metric("cache_entries", "Current overview cache entries", "gauge", s.overviewCache.Size())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)

	if s.syncAdmin != nil {
		if stats, err := s.syncAdmin.Stats(r.Context()); err == nil {
			fmt.Fprintf(w, "# HELP sync_queue_items Outbox rows by status\n")
			fmt.Fprintf(w, "# TYPE sync_queue_items gauge\n")
			fmt.Fprintf(w, "sync_queue_items{status=\"pending\"} %d\n", stats.Pending)
			fmt.Fprintf(w, "sync_queue_items{status=\"processing\"} %d\n", stats.Processing)
			fmt.Fprintf(w, "sync_queue_items{status=\"completed\"} %d\n", stats.Completed)
			fmt.Fprintf(w, "sync_queue_items{status=\"failed\"} %d\n\n", stats.Failed)
		}
	}
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p := s.ledger.Snapshot()
	NewResponse().
		Header("ETag", fmt.Sprintf(`"%d"`, p.Revision)).
		JSON(p).
		Write(w)
}

// handleProfileEvents streams every snapshot that becomes current as a
// server-sent event, starting with the current one. Slow readers skip
// intermediate snapshots and always get the latest.
func (s *Server) handleProfileEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive any server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	updates := make(chan core.Profile, 1)
	cancel := s.ledger.Watch(func(p core.Profile) {
		select {
		case updates <- p:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- p:
		default:
		}
	})
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	logger := applog.FromContext(r.Context())
	send := func(p core.Profile) bool {
		data, err := json.Marshal(p)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to encode snapshot event", applog.FieldError, err)
			return false
		}
		if _, err := fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", p.Revision, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	last := s.ledger.Snapshot()
	if !send(last) {
		return
	}
	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case p := <-updates:
			if p.Revision == last.Revision && p.UpdatedAt.Equal(last.UpdatedAt) {
				continue
			}
			last = p
			if !send(p) {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil || rc.Flush() != nil {
				return
			}
		}
	}
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}

	rev := s.ledger.Snapshot().Revision
	key := overviewKey(rev, params.Year, params.Month)
	ov, found := s.overviewCache.Get(key)
	if found {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Overview cache hit",
			applog.FieldYear, params.Year,
			applog.FieldMonth, params.Month,
			applog.FieldRevision, rev)
	} else {
		ov, err = s.ledger.MonthOverview(params.Year, params.Month)
		if err != nil {
			DomainErrorResponse(err).Write(w)
			return
		}
		s.overviewCache.Set(key, ov)
	}
	NewResponse().JSON(newOverviewView(ov, rev, s.currency)).Write(w)
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	total := s.ledger.NetWorth()
	NewResponse().JSON(map[string]any{
		"netWorth": total,
		"display":  total.Display(s.currency),
	}).Write(w)
}

func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	points, err := s.ledger.AccountHistory(id)
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	if points == nil {
		points = []core.BalancePoint{}
	}
	NewResponse().JSON(map[string]any{"accountId": id, "history": points}).Write(w)
}
