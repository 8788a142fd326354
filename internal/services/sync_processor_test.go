package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"salvadanaio/internal/storage"
)

type fakeQueue struct {
	mu         sync.Mutex
	pending    []storage.SyncQueue
	processing []int64
	complete   []int64
	through    []uint64
	failed     []int64
	retried    []int64
	resets     int
}

func (q *fakeQueue) DequeueSyncBatch(_ context.Context, limit int64) ([]storage.SyncQueue, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(int(limit), len(q.pending))
	out := append([]storage.SyncQueue(nil), q.pending[:n]...)
	q.pending = q.pending[n:]
	return out, nil
}

func (q *fakeQueue) MarkSyncProcessing(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = append(q.processing, id)
	return nil
}

func (q *fakeQueue) MarkSyncComplete(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.complete = append(q.complete, id)
	return nil
}

func (q *fakeQueue) CompleteSyncsThrough(_ context.Context, _ string, revision uint64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.through = append(q.through, revision)
	return 1, nil
}

func (q *fakeQueue) MarkSyncFailed(_ context.Context, id int64, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, id)
	return nil
}

func (q *fakeQueue) IncrementSyncAttempt(_ context.Context, id int64, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, id)
	return nil
}

func (q *fakeQueue) ResetStaleProcessing(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resets++
	return nil
}

func (q *fakeQueue) CleanupCompletedSyncs(context.Context, time.Time) error { return nil }

func (q *fakeQueue) RetryFailedSyncs(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.failed)), nil
}

func (q *fakeQueue) GetSyncQueueStats(context.Context) (*storage.GetSyncQueueStatsRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &storage.GetSyncQueueStatsRow{Pending: int64(len(q.pending)), Failed: int64(len(q.failed))}, nil
}

type fakeSnapshotPusher struct {
	revision uint64
	err      error
	calls    int
}

func (f *fakeSnapshotPusher) PushLatest(context.Context, string) (uint64, PushState, error) {
	f.calls++
	if f.err != nil {
		return f.revision, PushFailed, f.err
	}
	return f.revision, PushDelivered, nil
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestSyncProcessor_ProcessBatch(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int64
		pushErr     error
		wantDone    int
		wantFailed  int
		wantRetried int
	}{
		{"push succeeds", 0, nil, 1, 0, 0},
		{"push fails, retries left", 0, errBoom, 0, 0, 1},
		{"push fails, retries exhausted", 2, errBoom, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueue{pending: []storage.SyncQueue{
				{ID: 1, ProfileID: "p1", Revision: 4, Status: storage.SyncStatusPending, Attempts: tt.attempts},
			}}
			pusher := &fakeSnapshotPusher{revision: 6, err: tt.pushErr}
			p := NewSyncProcessor(q, pusher, DefaultSyncProcessorConfig())

			done := p.ProcessBatch(context.Background())

			if done != tt.wantDone {
				t.Errorf("completed = %d, want %d", done, tt.wantDone)
			}
			if len(q.processing) != 1 {
				t.Errorf("item was not marked processing")
			}
			if len(q.failed) != tt.wantFailed {
				t.Errorf("failed = %v", q.failed)
			}
			if len(q.retried) != tt.wantRetried {
				t.Errorf("retried = %v", q.retried)
			}
			if tt.wantDone == 1 {
				if len(q.complete) != 1 || len(q.through) != 1 || q.through[0] != 6 {
					t.Errorf("complete = %v through = %v", q.complete, q.through)
				}
			}
		})
	}
}

func TestSyncProcessor_BatchSize(t *testing.T) {
	q := &fakeQueue{}
	for i := int64(1); i <= 5; i++ {
		q.pending = append(q.pending, storage.SyncQueue{ID: i, ProfileID: "p1", Revision: i})
	}
	cfg := DefaultSyncProcessorConfig()
	cfg.BatchSize = 2
	pusher := &fakeSnapshotPusher{revision: 5}
	p := NewSyncProcessor(q, pusher, cfg)

	if n := p.ProcessBatch(context.Background()); n != 2 {
		t.Fatalf("first batch completed %d, want 2", n)
	}
	if pusher.calls != 2 {
		t.Fatalf("pusher called %d times", pusher.calls)
	}
}

func TestSyncProcessor_IsRunning(t *testing.T) {
	processor := NewSyncProcessor(&fakeQueue{}, &fakeSnapshotPusher{}, DefaultSyncProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StartStop(t *testing.T) {
	q := &fakeQueue{pending: []storage.SyncQueue{{ID: 1, ProfileID: "p1", Revision: 1}}}
	cfg := DefaultSyncProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	processor := NewSyncProcessor(q, &fakeSnapshotPusher{revision: 1}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	if !eventually(func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.complete) == 1
	}) {
		t.Fatal("pending item never processed")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor still running after Stop")
	}
	if q.resets != 1 {
		t.Errorf("stale processing rows reset %d times, want 1", q.resets)
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(&fakeQueue{}, &fakeSnapshotPusher{}, DefaultSyncProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSyncProcessor_StatsAndRetry(t *testing.T) {
	q := &fakeQueue{failed: []int64{3, 4}}
	processor := NewSyncProcessor(q, &fakeSnapshotPusher{}, DefaultSyncProcessorConfig())

	stats, err := processor.Stats(context.Background())
	if err != nil || stats.Failed != 2 {
		t.Fatalf("Stats = %+v, %v", stats, err)
	}
	n, err := processor.RetryFailed(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("RetryFailed = %d, %v", n, err)
	}
}
