package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"salvadanaio/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound wraps core.ErrNotFound so callers outside storage can test for
// the core sentinel.
var ErrNotFound = fmt.Errorf("local cache: %w", core.ErrNotFound)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}

	return repo, nil
}

// dsn enables WAL and a busy timeout so the server and the worker can share
// the same file.
func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Read returns the serialized snapshot stored under key, or ErrNotFound.
func (r *SQLiteRepository) Read(ctx context.Context, key string) ([]byte, uint64, error) {
	row, err := r.queries.GetProfile(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get profile %s: %w", key, err)
	}
	return []byte(row.Payload), uint64(row.Revision), nil
}

// Write stores a serialized snapshot under key, replacing what was there.
func (r *SQLiteRepository) Write(ctx context.Context, key string, payload []byte, revision uint64) error {
	err := r.queries.UpsertProfile(ctx, UpsertProfileParams{
		ID:        key,
		Revision:  int64(revision),
		Payload:   string(payload),
		UpdatedAt: r.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if err := r.queries.DeleteProfile(ctx, key); err != nil {
		return fmt.Errorf("delete profile %s: %w", key, err)
	}
	return nil
}

// LoadProfile reads and decodes the cached snapshot for id.
func (r *SQLiteRepository) LoadProfile(ctx context.Context, id string) (core.Profile, error) {
	payload, _, err := r.Read(ctx, id)
	if err != nil {
		return core.Profile{}, err
	}
	var p core.Profile
	if err := json.Unmarshal(payload, &p); err != nil {
		return core.Profile{}, fmt.Errorf("decode cached profile %s: %w", id, err)
	}
	return p, nil
}

// SaveProfile serializes p and writes it under p.ID.
func (r *SQLiteRepository) SaveProfile(ctx context.Context, p core.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	return r.Write(ctx, p.ID, payload, p.Revision)
}

// EnqueueSync records that revision of profileID still has to reach the
// remote store. Pushes always send the latest snapshot, so a pending row for
// the same profile is bumped instead of adding a new one.
func (r *SQLiteRepository) EnqueueSync(ctx context.Context, profileID string, revision uint64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	now := r.now().UnixMilli()
	n, err := q.BumpPendingSync(ctx, BumpPendingSyncParams{
		Revision:  int64(revision),
		UpdatedAt: now,
		ProfileID: profileID,
	})
	if err != nil {
		return 0, fmt.Errorf("bump pending sync: %w", err)
	}

	var id int64
	if n == 0 {
		id, err = q.InsertSync(ctx, InsertSyncParams{
			ProfileID: profileID,
			Revision:  int64(revision),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return 0, fmt.Errorf("insert sync: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enqueue: %w", err)
	}

	slog.InfoContext(ctx, "Snapshot push queued for retry",
		"profile_id", profileID,
		"revision", revision,
		"queue_id", id)
	return id, nil
}

// DequeueSyncBatch returns up to limit pending outbox rows, oldest first.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	items, err := r.queries.ListPendingSyncs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending syncs: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) GetSync(ctx context.Context, id int64) (SyncQueue, error) {
	item, err := r.queries.GetSync(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncQueue{}, ErrNotFound
	}
	if err != nil {
		return SyncQueue{}, fmt.Errorf("get sync %d: %w", id, err)
	}
	return item, nil
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncProcessing(ctx, r.now().UnixMilli(), id); err != nil {
		return fmt.Errorf("mark sync processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	if err := r.queries.MarkSyncComplete(ctx, r.now().UnixMilli(), id); err != nil {
		return fmt.Errorf("mark sync complete: %w", err)
	}
	return nil
}

// CompleteSyncsThrough settles every open outbox row of profileID whose
// revision is covered by a push of revision.
func (r *SQLiteRepository) CompleteSyncsThrough(ctx context.Context, profileID string, revision uint64) (int64, error) {
	n, err := r.queries.CompleteSyncsThrough(ctx, CompleteSyncsThroughParams{
		ProcessedAt: r.now().UnixMilli(),
		ProfileID:   profileID,
		Revision:    int64(revision),
	})
	if err != nil {
		return 0, fmt.Errorf("complete syncs through %d: %w", revision, err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, errMsg string) error {
	err := r.queries.MarkSyncFailed(ctx, SyncErrorParams{LastError: errMsg, UpdatedAt: r.now().UnixMilli(), ID: id})
	if err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	slog.WarnContext(ctx, "Snapshot push marked as failed", "queue_id", id, "error", errMsg)
	return nil
}

func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, errMsg string) error {
	err := r.queries.IncrementSyncAttempt(ctx, SyncErrorParams{LastError: errMsg, UpdatedAt: r.now().UnixMilli(), ID: id})
	if err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

// ResetStaleProcessing returns rows left in processing by a crash to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	n, err := r.queries.ResetStaleProcessing(ctx, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	n, err := r.queries.CleanupCompletedSyncs(ctx, before.UnixMilli())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	n, err := r.queries.RetryFailedSyncs(ctx, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*GetSyncQueueStatsRow, error) {
	stats, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sync queue stats: %w", err)
	}
	return &stats, nil
}
