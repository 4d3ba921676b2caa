// Package feedcache persists the final ranked feed per user with a TTL and
// serves it through cursor pagination. An expired entry or one with no post
// ids is a miss; writes replace any existing entry wholesale.
package feedcache

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Defaults for cache behavior.
const (
	DefaultTTL      = 2 * time.Hour
	DefaultPageSize = 20
)

// Entry is one cached ranked feed. PostIDs and Scores are parallel arrays
// in ranked order.
type Entry struct {
	UserID       string
	PostIDs      []string
	Scores       []float64
	ExperimentID string
	Variant      string
	ComputedAt   time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Page is one slice of a cached feed.
type Page struct {
	PostIDs      []string
	Scores       []float64
	HasMore      bool
	ComputedAt   time.Time
	ExperimentID string
	Variant      string
}

// Store persists cache entries. Get returns (nil, nil) when no entry
// exists; Put replaces any existing entry for the user.
type Store interface {
	Get(ctx context.Context, userID string) (*Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, userID string) error
}

// Cache wraps a Store with TTL and pagination policy.
type Cache struct {
	store    Store
	ttl      time.Duration
	pageSize int
	logger   *slog.Logger
	now      func() time.Time
}

// NewCache creates a feed cache. Zero ttl and pageSize fall back to the
// defaults.
func NewCache(store Store, ttl time.Duration, pageSize int, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		pageSize: pageSize,
		logger:   logger,
		now:      time.Now,
	}
}

// Lookup fetches the user's entry and reports whether it is usable. Store
// errors, absent entries, expired entries, and entries with no post ids all
// count as a miss.
func (c *Cache) Lookup(ctx context.Context, userID string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, userID)
	if err != nil {
		c.logger.Warn("feed cache read failed", "user_id", userID, "error", err)
		return nil, false
	}
	if entry == nil || len(entry.PostIDs) == 0 || entry.Expired(c.now()) {
		return nil, false
	}
	return entry, true
}

// Paginate slices one page out of an entry. The cursor is the last post id
// the client has seen; an empty or unknown cursor starts at the beginning.
func (c *Cache) Paginate(entry *Entry, cursor string) Page {
	start := 0
	if cursor != "" {
		for i, id := range entry.PostIDs {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + c.pageSize
	if end > len(entry.PostIDs) {
		end = len(entry.PostIDs)
	}

	page := Page{
		PostIDs:      append([]string(nil), entry.PostIDs[start:end]...),
		HasMore:      end < len(entry.PostIDs),
		ComputedAt:   entry.ComputedAt,
		ExperimentID: entry.ExperimentID,
		Variant:      entry.Variant,
	}
	if len(entry.Scores) >= end {
		page.Scores = append([]float64(nil), entry.Scores[start:end]...)
	}
	return page
}

// Get combines Lookup and Paginate. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, userID, cursor string) (Page, bool) {
	entry, ok := c.Lookup(ctx, userID)
	if !ok {
		return Page{}, false
	}
	return c.Paginate(entry, cursor), true
}

// Write replaces the user's entry with the given ranked list.
func (c *Cache) Write(ctx context.Context, userID string, ranked []feed.ScoredPost, experimentID, variant string) error {
	now := c.now()
	entry := Entry{
		UserID:       userID,
		PostIDs:      make([]string, len(ranked)),
		Scores:       make([]float64, len(ranked)),
		ExperimentID: experimentID,
		Variant:      variant,
		ComputedAt:   now,
		ExpiresAt:    now.Add(c.ttl),
	}
	for i, p := range ranked {
		entry.PostIDs[i] = p.PostID
		entry.Scores[i] = p.Score
	}
	return c.store.Put(ctx, entry)
}

// Invalidate removes the user's entry unconditionally.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, userID)
}

// PageSize reports the configured page length.
func (c *Cache) PageSize() int {
	return c.pageSize
}
