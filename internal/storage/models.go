package storage

import (
	"database/sql"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// Profile is a row of the local snapshot cache. Timestamps are unix millis.
type Profile struct {
	ID        string
	Revision  int64
	Payload   string
	UpdatedAt int64
}

// SyncQueue is an outbox row: a snapshot revision whose remote push is owed.
type SyncQueue struct {
	ID          int64
	ProfileID   string
	Revision    int64
	Status      string
	Attempts    int64
	LastError   sql.NullString
	CreatedAt   int64
	UpdatedAt   int64
	ProcessedAt sql.NullInt64
}
