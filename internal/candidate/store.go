package candidate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// InMemoryStore is an in-memory implementation of both Source and
// GraphStore for tests and local development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	posts   map[string]feed.Candidate
	follows map[string]map[string]struct{} // follower -> followees
	seen    map[string]map[string]struct{} // viewer -> seen post ids
	likes   map[string]int
}

// NewInMemoryStore creates an empty candidate store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		posts:   make(map[string]feed.Candidate),
		follows: make(map[string]map[string]struct{}),
		seen:    make(map[string]map[string]struct{}),
		likes:   make(map[string]int),
	}
}

// AddPost stores a candidate post.
func (s *InMemoryStore) AddPost(c feed.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[c.ID] = c
}

// AddFollow records that follower follows followee.
func (s *InMemoryStore) AddFollow(followerID, followeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.follows[followerID] == nil {
		s.follows[followerID] = make(map[string]struct{})
	}
	s.follows[followerID][followeeID] = struct{}{}
}

// MarkSeen records that the viewer has been served the post.
func (s *InMemoryStore) MarkSeen(viewerID, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[viewerID] == nil {
		s.seen[viewerID] = make(map[string]struct{})
	}
	s.seen[viewerID][postID] = struct{}{}
}

// SetLikeCount records a like count for a post.
func (s *InMemoryStore) SetLikeCount(postID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.likes[postID] = count
}

// FeedCandidates implements Source: denormalized rows for posts within the
// age cutoff, excluding the viewer's own and already-seen posts, enriched
// with viewer-relative follow flags.
func (s *InMemoryStore) FeedCandidates(ctx context.Context, viewerID string, limit int, maxAge time.Duration) ([]feed.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	followees := s.follows[viewerID]
	seen := s.seen[viewerID]

	var out []feed.Candidate
	for _, p := range s.posts {
		if p.AuthorID == viewerID {
			continue
		}
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		if _, wasSeen := seen[p.ID]; wasSeen {
			continue
		}
		if likes, ok := s.likes[p.ID]; ok {
			p.LikeCount = likes
		}
		if _, follows := followees[p.AuthorID]; follows {
			p.IsFollowing = true
		}
		out = append(out, p)
	}

	sortByCreatedDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Following implements GraphStore.
func (s *InMemoryStore) Following(ctx context.Context, viewerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id := range s.follows[viewerID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// SeenPostIDs implements GraphStore.
func (s *InMemoryStore) SeenPostIDs(ctx context.Context, viewerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id := range s.seen[viewerID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// RecentPosts implements GraphStore: newest first, no age cutoff.
func (s *InMemoryStore) RecentPosts(ctx context.Context, excludeAuthorID string, limit int) ([]feed.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []feed.Candidate
	for _, p := range s.posts {
		if p.AuthorID == excludeAuthorID {
			continue
		}
		out = append(out, p)
	}
	sortByCreatedDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LikeCounts implements GraphStore.
func (s *InMemoryStore) LikeCounts(ctx context.Context, postIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(postIDs))
	for _, id := range postIDs {
		if count, ok := s.likes[id]; ok {
			out[id] = count
		}
	}
	return out, nil
}

// sortByCreatedDesc orders candidates newest first, ID ASC as tie-break.
func sortByCreatedDesc(candidates []feed.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.After(candidates[j].CreatedAt) {
			return true
		}
		if candidates[i].CreatedAt.Before(candidates[j].CreatedAt) {
			return false
		}
		return candidates[i].ID < candidates[j].ID
	})
}
