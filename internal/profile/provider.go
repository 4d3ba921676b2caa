// Package profile supplies per-user interest profiles, combining a durable
// store populated by an external aggregation job with an explicit
// in-process TTL cache.
package profile

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// DefaultFreshnessWindow is how long a profile counts as fresh.
const DefaultFreshnessWindow = time.Hour

// Store reads durable interest profiles. Get returns (nil, nil) when no
// profile exists for the user.
type Store interface {
	Get(ctx context.Context, userID string) (*feed.InterestProfile, error)
}

// Recomputer triggers the external profile aggregation for one user. The
// caller re-reads the durable store afterwards.
type Recomputer interface {
	Recompute(ctx context.Context, userID string) error
}

// Provider resolves interest profiles with staleness control. Get never
// fails: the worst case is a nil profile, which downstream stages treat as
// "no personalization".
type Provider struct {
	store     Store
	recompute Recomputer
	cache     *Cache
	window    time.Duration
	logger    *slog.Logger
}

// NewProvider creates a profile provider. The cache is required; pass
// NewCache with the desired TTL. Recomputer may be nil when no external
// aggregation is wired.
func NewProvider(store Store, recompute Recomputer, cache *Cache, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewCache(DefaultFreshnessWindow)
	}
	return &Provider{
		store:     store,
		recompute: recompute,
		cache:     cache,
		window:    DefaultFreshnessWindow,
		logger:    logger,
	}
}

// SetFreshnessWindow overrides how long a durable profile counts as fresh.
func (p *Provider) SetFreshnessWindow(d time.Duration) {
	if d > 0 {
		p.window = d
	}
}

// Get resolves the viewer's profile: in-process cache first, then the
// durable store, then a recompute-and-re-read. A failed recomputation falls
// back to the stale durable profile when one exists.
func (p *Provider) Get(ctx context.Context, userID string) *feed.InterestProfile {
	if cached, ok := p.cache.Get(userID); ok {
		return cached
	}
	if p.store == nil {
		return nil
	}

	stored, err := p.store.Get(ctx, userID)
	if err != nil {
		p.logger.Warn("profile read failed",
			"user_id", userID,
			"error", err)
		return nil
	}

	if stored != nil && time.Since(stored.ComputedAt) < p.window {
		p.cache.Put(userID, stored)
		return stored
	}

	// Stale or missing: ask the external job to recompute, then re-read.
	if p.recompute != nil {
		if err := p.recompute.Recompute(ctx, userID); err != nil {
			p.logger.Warn("profile recomputation failed, falling back to stale profile",
				"user_id", userID,
				"error", err)
			if stored != nil {
				p.cache.Put(userID, stored)
			}
			return stored
		}

		refreshed, err := p.store.Get(ctx, userID)
		if err != nil {
			p.logger.Warn("profile re-read failed after recompute, falling back to stale profile",
				"user_id", userID,
				"error", err)
			return stored
		}
		if refreshed != nil {
			p.cache.Put(userID, refreshed)
			return refreshed
		}
	}

	if stored != nil {
		p.cache.Put(userID, stored)
	}
	return stored
}

// Invalidate evicts the in-process cache entry only; the durable profile is
// untouched.
func (p *Provider) Invalidate(userID string) {
	p.cache.Evict(userID)
}
