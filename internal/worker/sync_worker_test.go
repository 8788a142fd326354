package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salvadanaio/internal/amqp"
	"salvadanaio/internal/core"
	"salvadanaio/internal/services"
	"salvadanaio/internal/storage"
)

var errRemoteDown = errors.New("remote down")

type mockLocal struct {
	mu        sync.Mutex
	profiles  map[string]core.Profile
	loadErr   error
	enqueued  []uint64
	completed []uint64
}

func (m *mockLocal) LoadProfile(_ context.Context, id string) (core.Profile, error) {
	if m.loadErr != nil {
		return core.Profile{}, m.loadErr
	}
	p, ok := m.profiles[id]
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	return p, nil
}

func (m *mockLocal) EnqueueSync(_ context.Context, _ string, revision uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, revision)
	return 1, nil
}

func (m *mockLocal) CompleteSyncsThrough(_ context.Context, _ string, revision uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, revision)
	return 1, nil
}

type mockPusher struct {
	err    error
	pushed []uint64
}

func (m *mockPusher) Push(_ context.Context, p core.Profile) (services.PushState, error) {
	if m.err != nil {
		return services.PushFailed, m.err
	}
	m.pushed = append(m.pushed, p.Revision)
	return services.PushDelivered, nil
}

func localWith(revision uint64) *mockLocal {
	p := core.NewProfile("p1")
	p.Revision = revision
	return &mockLocal{profiles: map[string]core.Profile{"p1": p}}
}

func msg(revision uint64) *amqp.SnapshotSyncMessage {
	return &amqp.SnapshotSyncMessage{ProfileID: "p1", Revision: revision, Timestamp: time.Now()}
}

func TestHandleSyncMessage(t *testing.T) {
	tests := []struct {
		name          string
		stored        uint64
		message       uint64
		pushErr       error
		wantPushed    int
		wantEnqueued  int
		wantCompleted int
	}{
		{"current revision is pushed", 3, 3, nil, 1, 0, 1},
		{"newer message pushes cached snapshot", 3, 5, nil, 1, 0, 1},
		{"stale message is skipped", 4, 3, nil, 0, 0, 0},
		{"failed push goes to outbox", 3, 3, errRemoteDown, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := localWith(tt.stored)
			pusher := &mockPusher{err: tt.pushErr}
			w := NewSyncWorker(local, pusher, nil)

			if err := w.HandleSyncMessage(context.Background(), msg(tt.message)); err != nil {
				t.Fatalf("HandleSyncMessage: %v", err)
			}
			if len(pusher.pushed) != tt.wantPushed {
				t.Errorf("pushed = %v", pusher.pushed)
			}
			if len(local.enqueued) != tt.wantEnqueued {
				t.Errorf("enqueued = %v", local.enqueued)
			}
			if len(local.completed) != tt.wantCompleted {
				t.Errorf("completed = %v", local.completed)
			}
		})
	}
}

func TestHandleSyncMessage_MissingSnapshot(t *testing.T) {
	w := NewSyncWorker(&mockLocal{profiles: map[string]core.Profile{}}, &mockPusher{}, nil)
	if err := w.HandleSyncMessage(context.Background(), msg(1)); err != nil {
		t.Fatalf("missing snapshot should be dropped, got %v", err)
	}
}

func TestHandleSyncMessage_StorageError(t *testing.T) {
	local := localWith(1)
	local.loadErr = errors.New("disk on fire")
	w := NewSyncWorker(local, &mockPusher{}, nil)

	if err := w.HandleSyncMessage(context.Background(), msg(1)); err == nil {
		t.Fatal("storage error should be returned so the message is requeued")
	}
}

func TestStartupSyncCheck(t *testing.T) {
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(dir + "/worker.db")
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	p := core.NewProfile("p1")
	p.Revision = 7
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if _, err := repo.EnqueueSync(ctx, "p1", 7); err != nil {
		t.Fatalf("EnqueueSync: %v", err)
	}

	pusher := &mockPusher{}
	processor := services.NewSyncProcessor(repo, services.NewCachedSnapshotPusher(repo, pusher), services.DefaultSyncProcessorConfig())
	w := NewSyncWorker(repo, pusher, processor)

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if len(pusher.pushed) != 1 || pusher.pushed[0] != 7 {
		t.Fatalf("pushed = %v", pusher.pushed)
	}
	stats, err := repo.GetSyncQueueStats(ctx)
	if err != nil {
		t.Fatalf("GetSyncQueueStats: %v", err)
	}
	if stats.Pending != 0 || stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
