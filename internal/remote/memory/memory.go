// Package memory is an in-process remote store for development and tests.
package memory

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"salvadanaio/internal/remote"
)

type Store struct {
	mu   sync.Mutex
	docs map[string][]byte
	subs map[string]map[chan []byte]struct{}
}

func New() *Store {
	return &Store{
		docs: make(map[string][]byte),
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// NewFromDir seeds the store with every *.json file in base. A file named
// p1.json becomes the document at remote.ProfilePath("p1"). Unreadable
// files are skipped.
func NewFromDir(base string) *Store {
	s := New()
	matches, _ := filepath.Glob(filepath.Join(base, "*.json"))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil || len(data) == 0 {
			continue
		}
		id := strings.TrimSuffix(filepath.Base(m), ".json")
		s.docs[remote.ProfilePath(id)] = data
	}
	return s
}

// Write stores doc and fans it out to subscribers of path.
func (s *Store) Write(_ context.Context, path string, doc []byte) error {
	cp := append([]byte(nil), doc...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = cp
	for ch := range s.subs[path] {
		offer(ch, cp)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

func (s *Store) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Subscribe delivers the latest document to the returned channel. A slow
// reader skips intermediate versions and always sees the newest one.
func (s *Store) Subscribe(ctx context.Context, path string) (<-chan []byte, error) {
	ch := make(chan []byte, 1)

	s.mu.Lock()
	if s.subs[path] == nil {
		s.subs[path] = make(map[chan []byte]struct{})
	}
	s.subs[path][ch] = struct{}{}
	if doc, ok := s.docs[path]; ok {
		offer(ch, doc)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[path], ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

// Subscribers reports how many subscriptions path currently has.
func (s *Store) Subscribers(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[path])
}

// offer replaces whatever is buffered in ch with doc. Callers hold s.mu.
func offer(ch chan []byte, doc []byte) {
	select {
	case ch <- doc:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- doc:
	default:
	}
}
