package storage

import (
	"context"
)

const getProfile = `-- name: GetProfile :one
SELECT id, revision, payload, updated_at FROM profiles WHERE id = ?
`

func (q *Queries) GetProfile(ctx context.Context, id string) (Profile, error) {
	row := q.db.QueryRowContext(ctx, getProfile, id)
	var i Profile
	err := row.Scan(&i.ID, &i.Revision, &i.Payload, &i.UpdatedAt)
	return i, err
}

const upsertProfile = `-- name: UpsertProfile :exec
INSERT INTO profiles (id, revision, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    revision = excluded.revision,
    payload = excluded.payload,
    updated_at = excluded.updated_at
`

type UpsertProfileParams struct {
	ID        string
	Revision  int64
	Payload   string
	UpdatedAt int64
}

func (q *Queries) UpsertProfile(ctx context.Context, arg UpsertProfileParams) error {
	_, err := q.db.ExecContext(ctx, upsertProfile, arg.ID, arg.Revision, arg.Payload, arg.UpdatedAt)
	return err
}

const deleteProfile = `-- name: DeleteProfile :exec
DELETE FROM profiles WHERE id = ?
`

func (q *Queries) DeleteProfile(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteProfile, id)
	return err
}

const bumpPendingSync = `-- name: BumpPendingSync :execrows
UPDATE sync_queue
SET revision = MAX(revision, ?), updated_at = ?
WHERE profile_id = ? AND status = 'pending'
`

type BumpPendingSyncParams struct {
	Revision  int64
	UpdatedAt int64
	ProfileID string
}

func (q *Queries) BumpPendingSync(ctx context.Context, arg BumpPendingSyncParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, bumpPendingSync, arg.Revision, arg.UpdatedAt, arg.ProfileID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertSync = `-- name: InsertSync :one
INSERT INTO sync_queue (profile_id, revision, status, attempts, created_at, updated_at)
VALUES (?, ?, 'pending', 0, ?, ?)
RETURNING id
`

type InsertSyncParams struct {
	ProfileID string
	Revision  int64
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) InsertSync(ctx context.Context, arg InsertSyncParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertSync, arg.ProfileID, arg.Revision, arg.CreatedAt, arg.UpdatedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listPendingSyncs = `-- name: ListPendingSyncs :many
SELECT id, profile_id, revision, status, attempts, last_error, created_at, updated_at, processed_at
FROM sync_queue
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT ?
`

func (q *Queries) ListPendingSyncs(ctx context.Context, limit int64) ([]SyncQueue, error) {
	rows, err := q.db.QueryContext(ctx, listPendingSyncs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SyncQueue
	for rows.Next() {
		var i SyncQueue
		if err := rows.Scan(
			&i.ID,
			&i.ProfileID,
			&i.Revision,
			&i.Status,
			&i.Attempts,
			&i.LastError,
			&i.CreatedAt,
			&i.UpdatedAt,
			&i.ProcessedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSync = `-- name: GetSync :one
SELECT id, profile_id, revision, status, attempts, last_error, created_at, updated_at, processed_at
FROM sync_queue WHERE id = ?
`

func (q *Queries) GetSync(ctx context.Context, id int64) (SyncQueue, error) {
	row := q.db.QueryRowContext(ctx, getSync, id)
	var i SyncQueue
	err := row.Scan(
		&i.ID,
		&i.ProfileID,
		&i.Revision,
		&i.Status,
		&i.Attempts,
		&i.LastError,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ProcessedAt,
	)
	return i, err
}

const markSyncProcessing = `-- name: MarkSyncProcessing :exec
UPDATE sync_queue SET status = 'processing', updated_at = ? WHERE id = ?
`

func (q *Queries) MarkSyncProcessing(ctx context.Context, updatedAt, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncProcessing, updatedAt, id)
	return err
}

const markSyncComplete = `-- name: MarkSyncComplete :exec
UPDATE sync_queue
SET status = 'completed', last_error = NULL, updated_at = ?, processed_at = ?
WHERE id = ?
`

func (q *Queries) MarkSyncComplete(ctx context.Context, processedAt, id int64) error {
	_, err := q.db.ExecContext(ctx, markSyncComplete, processedAt, processedAt, id)
	return err
}

const completeSyncsThrough = `-- name: CompleteSyncsThrough :execrows
UPDATE sync_queue
SET status = 'completed', last_error = NULL, updated_at = ?, processed_at = ?
WHERE profile_id = ? AND revision <= ? AND status IN ('pending', 'processing', 'failed')
`

type CompleteSyncsThroughParams struct {
	ProcessedAt int64
	ProfileID   string
	Revision    int64
}

func (q *Queries) CompleteSyncsThrough(ctx context.Context, arg CompleteSyncsThroughParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, completeSyncsThrough, arg.ProcessedAt, arg.ProcessedAt, arg.ProfileID, arg.Revision)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSyncFailed = `-- name: MarkSyncFailed :exec
UPDATE sync_queue
SET status = 'failed', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?
`

type SyncErrorParams struct {
	LastError string
	UpdatedAt int64
	ID        int64
}

func (q *Queries) MarkSyncFailed(ctx context.Context, arg SyncErrorParams) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, arg.LastError, arg.UpdatedAt, arg.ID)
	return err
}

const incrementSyncAttempt = `-- name: IncrementSyncAttempt :exec
UPDATE sync_queue
SET status = 'pending', attempts = attempts + 1, last_error = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) IncrementSyncAttempt(ctx context.Context, arg SyncErrorParams) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, arg.LastError, arg.UpdatedAt, arg.ID)
	return err
}

const resetStaleProcessing = `-- name: ResetStaleProcessing :execrows
UPDATE sync_queue SET status = 'pending', updated_at = ? WHERE status = 'processing'
`

func (q *Queries) ResetStaleProcessing(ctx context.Context, updatedAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, resetStaleProcessing, updatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const cleanupCompletedSyncs = `-- name: CleanupCompletedSyncs :execrows
DELETE FROM sync_queue WHERE status = 'completed' AND processed_at < ?
`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, cutoff int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const retryFailedSyncs = `-- name: RetryFailedSyncs :execrows
UPDATE sync_queue SET status = 'pending', attempts = 0, updated_at = ? WHERE status = 'failed'
`

func (q *Queries) RetryFailedSyncs(ctx context.Context, updatedAt int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, retryFailedSyncs, updatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getSyncQueueStats = `-- name: GetSyncQueueStats :one
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)    AS pending,
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0) AS processing,
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)  AS completed,
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)     AS failed
FROM sync_queue
`

type GetSyncQueueStatsRow struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func (q *Queries) GetSyncQueueStats(ctx context.Context) (GetSyncQueueStatsRow, error) {
	row := q.db.QueryRowContext(ctx, getSyncQueueStats)
	var i GetSyncQueueStatsRow
	err := row.Scan(&i.Pending, &i.Processing, &i.Completed, &i.Failed)
	return i, err
}
