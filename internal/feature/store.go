package feature

import (
	"context"
	"sync"
)

// InMemorySignalStore is an in-memory implementation of RowSource,
// EmbeddingSource, and AffinitySource for tests and local development.
// Thread-safe via RWMutex.
type InMemorySignalStore struct {
	mu         sync.RWMutex
	rows       map[string]Row
	embeddings map[string]Embedding
	affinities map[string]map[string]float64 // viewerID -> authorID -> affinity
}

// NewInMemorySignalStore creates an empty signal store.
func NewInMemorySignalStore() *InMemorySignalStore {
	return &InMemorySignalStore{
		rows:       make(map[string]Row),
		embeddings: make(map[string]Embedding),
		affinities: make(map[string]map[string]float64),
	}
}

// SetRow stores a precomputed feature row.
func (s *InMemorySignalStore) SetRow(row Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.PostID] = row
}

// SetEmbedding stores a content embedding.
func (s *InMemorySignalStore) SetEmbedding(e Embedding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[e.PostID] = e
}

// SetAffinity stores a viewer<->author affinity score.
func (s *InMemorySignalStore) SetAffinity(viewerID, authorID string, affinity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.affinities[viewerID] == nil {
		s.affinities[viewerID] = make(map[string]float64)
	}
	s.affinities[viewerID][authorID] = affinity
}

// PostFeatures returns rows for the requested post ids; absent ids are
// simply omitted from the result map.
func (s *InMemorySignalStore) PostFeatures(ctx context.Context, postIDs []string) (map[string]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Row, len(postIDs))
	for _, id := range postIDs {
		if row, ok := s.rows[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

// ContentEmbeddings returns embeddings for the requested post ids.
func (s *InMemorySignalStore) ContentEmbeddings(ctx context.Context, postIDs []string) (map[string]Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Embedding, len(postIDs))
	for _, id := range postIDs {
		if e, ok := s.embeddings[id]; ok {
			out[id] = e
		}
	}
	return out, nil
}

// Affinities returns the viewer's affinity scores for the requested authors.
func (s *InMemorySignalStore) Affinities(ctx context.Context, viewerID string, authorIDs []string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byAuthor := s.affinities[viewerID]
	out := make(map[string]float64, len(authorIDs))
	for _, id := range authorIDs {
		if a, ok := byAuthor[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}
