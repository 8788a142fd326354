package http

import (
	"net/http"

	applog "salvadanaio/internal/log"
)

// handleSyncStatus reports the push outcome of one revision. Statuses are
// kept for a limited time, after which the revision is unknown.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	rev, err := parseRevision(r.PathValue("revision"))
	if err != nil {
		DomainErrorResponse(err).Write(w)
		return
	}
	st, ok := s.ledger.PushStatus(rev)
	if !ok {
		NotFoundError("no push status for this revision").Write(w)
		return
	}
	NewResponse().JSON(st).Write(w)
}

func (s *Server) handleSyncStats(w http.ResponseWriter, r *http.Request) {
	if s.syncAdmin == nil {
		ErrorResponse(http.StatusServiceUnavailable, "sync processor not configured").Write(w)
		return
	}
	stats, err := s.syncAdmin.Stats(r.Context())
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Failed to read outbox stats", err, applog.ComponentSync, "sync_stats", nil)
		InternalServerError("failed to read outbox stats").Write(w)
		return
	}
	NewResponse().JSON(map[string]any{
		"running":  s.syncAdmin.IsRunning(),
		"queue":    stats,
		"revision": s.ledger.Snapshot().Revision,
	}).Write(w)
}

// handleSyncRetry puts failed outbox rows back to pending.
func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if s.syncAdmin == nil {
		ErrorResponse(http.StatusServiceUnavailable, "sync processor not configured").Write(w)
		return
	}
	n, err := s.syncAdmin.RetryFailed(r.Context())
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(r.Context())).
			LogError(r.Context(), "Failed to requeue outbox rows", err, applog.ComponentSync, "sync_retry", nil)
		InternalServerError("failed to requeue failed syncs").Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Failed syncs requeued", "count", n)
	NewResponse().JSON(map[string]int64{"requeued": n}).Write(w)
}
