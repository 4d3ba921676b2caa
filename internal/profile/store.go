package profile

import (
	"context"
	"sync"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// InMemoryStore is an in-memory implementation of Store for tests.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]feed.InterestProfile
}

// NewInMemoryStore creates an empty profile store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles: make(map[string]feed.InterestProfile),
	}
}

// Put stores a profile, replacing any existing one wholesale.
func (s *InMemoryStore) Put(p feed.InterestProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// Get returns the stored profile, or (nil, nil) when absent.
func (s *InMemoryStore) Get(ctx context.Context, userID string) (*feed.InterestProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	pCopy := p
	return &pCopy, nil
}
