package feedcache

import (
	"context"
	"sync"
)

// InMemoryStore holds cache entries in a map. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewInMemoryStore creates an empty cache store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]Entry),
	}
}

// Get returns a copy of the stored entry, or (nil, nil) when absent.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	out := e
	out.PostIDs = append([]string(nil), e.PostIDs...)
	out.Scores = append([]float64(nil), e.Scores...)
	return &out, nil
}

// Put replaces the user's entry.
func (s *InMemoryStore) Put(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = entry
	return nil
}

// Delete removes the user's entry if present.
func (s *InMemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}
