package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"salvadanaio/internal/core"
)

var errBoom = errors.New("boom")

type fakeLocal struct {
	mu       sync.Mutex
	profiles map[string]core.Profile
	saves    int
	saveErr  error
	loadErr  error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{profiles: make(map[string]core.Profile)}
}

func (f *fakeLocal) LoadProfile(_ context.Context, id string) (core.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return core.Profile{}, f.loadErr
	}
	p, ok := f.profiles[id]
	if !ok {
		return core.Profile{}, core.ErrNotFound
	}
	return p.Clone(), nil
}

func (f *fakeLocal) SaveProfile(_ context.Context, p core.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.profiles[p.ID] = p.Clone()
	return nil
}

func (f *fakeLocal) get(id string) (core.Profile, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	return p, ok
}

type fakeOutbox struct {
	mu        sync.Mutex
	enqueued  []uint64
	completed []uint64
}

func (f *fakeOutbox) EnqueueSync(_ context.Context, _ string, revision uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, revision)
	return int64(len(f.enqueued)), nil
}

func (f *fakeOutbox) CompleteSyncsThrough(_ context.Context, _ string, revision uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, revision)
	return 1, nil
}

func (f *fakeOutbox) snapshot() (enqueued, completed []uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.enqueued...), append([]uint64(nil), f.completed...)
}

// scriptedPusher fails the first failures pushes and records the rest.
type scriptedPusher struct {
	mu       sync.Mutex
	failures int
	state    PushState
	pushed   []uint64
}

func (p *scriptedPusher) Push(_ context.Context, prof core.Profile) (PushState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return PushFailed, errBoom
	}
	p.pushed = append(p.pushed, prof.Revision)
	if p.state == "" {
		return PushDelivered, nil
	}
	return p.state, nil
}

func (p *scriptedPusher) revisions() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.pushed...)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *fakePublisher) PublishSnapshotSync(_ context.Context, profileID string, revision uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, fmt.Sprintf("%s@%d", profileID, revision))
	return nil
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
