// Package store holds the single authoritative in-memory profile snapshot.
//
// Snapshots are immutable values: readers get a copy and writers replace the
// whole value. Update runs a transform under the write lock, so a compound
// change is published as exactly one transition.
package store

import (
	"sync"
	"time"

	"salvadanaio/internal/core"
)

type Listener func(core.Profile)

type Store struct {
	mu      sync.RWMutex
	current core.Profile
	subs    map[uint64]Listener
	nextSub uint64

	// held while listeners run so they observe transitions in order
	notifyMu sync.Mutex

	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used to stamp UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(initial core.Profile, opts ...Option) *Store {
	s := &Store{
		current: initial.Clone(),
		subs:    make(map[uint64]Listener),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current snapshot.
func (s *Store) Get() core.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Revision returns the revision of the current snapshot.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Revision
}

// Subscribe registers fn for every future transition. Listeners run
// synchronously and must not call Update, Replace or ReplaceIf.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Update applies fn to the current snapshot. On success the result gets the
// next revision and becomes current. On error nothing changes.
func (s *Store) Update(fn func(core.Profile) (core.Profile, error)) (core.Profile, error) {
	s.mu.Lock()
	next, err := fn(s.current.Clone())
	if err != nil {
		s.mu.Unlock()
		return core.Profile{}, err
	}
	next.ID = s.current.ID
	next.Revision = s.current.Revision + 1
	next.UpdatedAt = s.now().UTC()
	s.publishLocked(next)
	return next.Clone(), nil
}

// Replace sets p as current without touching its revision.
func (s *Store) Replace(p core.Profile) {
	s.mu.Lock()
	s.publishLocked(p.Clone())
}

// ReplaceIf replaces the snapshot with incoming when accept approves it,
// checked atomically against the current snapshot.
func (s *Store) ReplaceIf(incoming core.Profile, accept func(current, incoming core.Profile) bool) bool {
	s.mu.Lock()
	if !accept(s.current, incoming) {
		s.mu.Unlock()
		return false
	}
	s.publishLocked(incoming.Clone())
	return true
}

// publishLocked must be called with mu held; it releases it.
func (s *Store) publishLocked(p core.Profile) {
	s.current = p
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, fn := range listeners {
		fn(p.Clone())
	}
}
