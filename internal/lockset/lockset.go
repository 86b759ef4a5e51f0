// Package lockset provides per-key exclusive locks that a caller acquires as a
// group. Keys are always locked in ascending order so two callers with
// overlapping key sets cannot deadlock.
package lockset

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Set hands out per-item mutexes. Entries are reference counted and dropped
// once nobody holds or waits for them.
type Set struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

func New() *Set {
	return &Set{entries: make(map[uuid.UUID]*entry)}
}

// Lock acquires every id (duplicates are ignored) and returns the function that
// releases them.
func (s *Set) Lock(ids ...uuid.UUID) (unlock func()) {
	keys := Sorted(ids)

	held := make([]*entry, 0, len(keys))
	for _, id := range keys {
		e := s.acquire(id)
		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			s.release(keys[i])
		}
	}
}

// Len returns the number of live entries.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Set) acquire(id uuid.UUID) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	e.refs++
	return e
}

func (s *Set) release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(s.entries, id)
	}
}

// Sorted returns the distinct ids in ascending order of their canonical string form,
// which matches the ORDER BY id used for row locks.
func Sorted(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
