package experiment

import (
	"context"
	"sync"
)

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu     sync.RWMutex
	active *Experiment
}

// NewInMemoryStore creates a new in-memory experiment store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// SetActive installs the active experiment. Passing nil clears it.
func (s *InMemoryStore) SetActive(exp *Experiment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = exp
}

// ActiveExperiment returns the currently active experiment, or nil.
func (s *InMemoryStore) ActiveExperiment(ctx context.Context) (*Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, nil
	}
	expCopy := *s.active
	return &expCopy, nil
}

// InMemoryAssignmentStore is an in-memory implementation of AssignmentStore.
// Thread-safe via RWMutex.
type InMemoryAssignmentStore struct {
	mu          sync.RWMutex
	assignments map[string]Assignment // experimentID\x00userID -> assignment
}

// NewInMemoryAssignmentStore creates a new in-memory assignment store.
func NewInMemoryAssignmentStore() *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{
		assignments: make(map[string]Assignment),
	}
}

func assignmentKey(experimentID, userID string) string {
	return experimentID + "\x00" + userID
}

// Get returns the stored assignment, or nil when none exists.
func (s *InMemoryAssignmentStore) Get(ctx context.Context, experimentID, userID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[assignmentKey(experimentID, userID)]
	if !ok {
		return nil, nil
	}
	aCopy := a
	return &aCopy, nil
}

// Put stores an assignment. The first write wins; duplicate writes are
// benign no-ops because racing requests compute the same value.
func (s *InMemoryAssignmentStore) Put(ctx context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assignmentKey(a.ExperimentID, a.UserID)
	if _, exists := s.assignments[key]; exists {
		return nil
	}
	s.assignments[key] = *a
	return nil
}

// Count returns the number of stored assignments (for tests).
func (s *InMemoryAssignmentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assignments)
}
