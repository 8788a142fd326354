package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"salvadanaio/internal/amqp"
	"salvadanaio/internal/core"
	"salvadanaio/internal/services"
)

// LocalStore is the shared SQLite database as seen by the worker.
type LocalStore interface {
	LoadProfile(ctx context.Context, id string) (core.Profile, error)
	EnqueueSync(ctx context.Context, profileID string, revision uint64) (int64, error)
	CompleteSyncsThrough(ctx context.Context, profileID string, revision uint64) (int64, error)
}

// SyncWorker pushes snapshots announced over AMQP to the remote store.
type SyncWorker struct {
	local     LocalStore
	pusher    services.Pusher
	processor *services.SyncProcessor
}

func NewSyncWorker(local LocalStore, pusher services.Pusher, processor *services.SyncProcessor) *SyncWorker {
	return &SyncWorker{
		local:     local,
		pusher:    pusher,
		processor: processor,
	}
}

// HandleSyncMessage pushes the cached snapshot named by msg. Messages older
// than the cached revision are skipped: a message for the newer revision
// follows. A failed push is recorded in the outbox and the message is
// acknowledged; the outbox processor owns retries.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.SnapshotSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"profile_id", msg.ProfileID,
		"revision", msg.Revision)

	p, err := w.local.LoadProfile(ctx, msg.ProfileID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "No cached snapshot for sync message, dropping",
			"profile_id", msg.ProfileID,
			"revision", msg.Revision)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot from storage: %w", err)
	}

	if msg.Revision < p.Revision {
		slog.InfoContext(ctx, "Skipping stale sync message",
			"profile_id", msg.ProfileID,
			"revision", msg.Revision,
			"stored_revision", p.Revision)
		return nil
	}

	if _, err := w.pusher.Push(ctx, p); err != nil {
		slog.ErrorContext(ctx, "Failed to push snapshot, recording for retry",
			"profile_id", p.ID,
			"revision", p.Revision,
			"error", err)
		if _, qerr := w.local.EnqueueSync(ctx, p.ID, p.Revision); qerr != nil {
			return fmt.Errorf("push snapshot: %w (outbox: %v)", err, qerr)
		}
		return nil
	}

	if _, err := w.local.CompleteSyncsThrough(ctx, p.ID, p.Revision); err != nil {
		slog.WarnContext(ctx, "Failed to complete outbox rows",
			"profile_id", p.ID,
			"revision", p.Revision,
			"error", err)
	}

	slog.InfoContext(ctx, "Snapshot pushed to remote store",
		"profile_id", p.ID,
		"revision", p.Revision,
		"timestamp", msg.Timestamp)
	return nil
}

// StartupSyncCheck drains the outbox once at startup to recover pushes
// missed while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	if w.processor == nil {
		return nil
	}

	total := 0
	for range 5 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := w.processor.ProcessBatch(ctx)
		if n == 0 {
			break
		}
		total += n
	}

	if total == 0 {
		slog.InfoContext(ctx, "No pending snapshots found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync check completed", "pushed", total)
	return nil
}
