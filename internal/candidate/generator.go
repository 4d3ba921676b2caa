// Package candidate produces the bounded pool of posts eligible for one
// viewer's feed request. The primary path is a single denormalized RPC; a
// slower multi-query fallback covers RPC failures and empty results.
package candidate

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Defaults for candidate generation.
const (
	// DefaultPoolLimit bounds the candidate pool per request.
	DefaultPoolLimit = 10000

	// DefaultMaxAge is the age cutoff for the primary candidate query.
	DefaultMaxAge = 72 * time.Hour
)

// Source is the primary candidate path: one RPC returning denormalized,
// pre-joined candidate rows. An empty result is a valid outcome, not an
// error.
type Source interface {
	FeedCandidates(ctx context.Context, viewerID string, limit int, maxAge time.Duration) ([]feed.Candidate, error)
}

// GraphStore provides the narrower queries the fallback path is built on.
type GraphStore interface {
	// Following returns the ids the viewer follows.
	Following(ctx context.Context, viewerID string) ([]string, error)
	// SeenPostIDs returns post ids already served to the viewer.
	SeenPostIDs(ctx context.Context, viewerID string) ([]string, error)
	// RecentPosts returns recent non-deleted top-level posts, excluding
	// the given author, newest first, truncated to limit.
	RecentPosts(ctx context.Context, excludeAuthorID string, limit int) ([]feed.Candidate, error)
	// LikeCounts batch-fetches like counts for the given post ids.
	LikeCounts(ctx context.Context, postIDs []string) (map[string]int, error)
}

// Generator produces candidate pools. Generate never fails: on total
// failure of both paths it returns an empty pool.
type Generator struct {
	primary  Source
	fallback GraphStore
	limit    int
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewGenerator creates a candidate generator.
func NewGenerator(primary Source, fallback GraphStore, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		primary:  primary,
		fallback: fallback,
		limit:    DefaultPoolLimit,
		maxAge:   DefaultMaxAge,
		logger:   logger,
	}
}

// SetLimit overrides the pool size limit.
func (g *Generator) SetLimit(limit int) {
	if limit > 0 {
		g.limit = limit
	}
}

// SetMaxAge overrides the primary path's age cutoff.
func (g *Generator) SetMaxAge(maxAge time.Duration) {
	if maxAge > 0 {
		g.maxAge = maxAge
	}
}

// Generate returns the candidate pool for a viewer. The fallback path runs
// when the primary RPC errors or returns zero rows.
func (g *Generator) Generate(ctx context.Context, viewerID string) []feed.Candidate {
	if g.primary != nil {
		candidates, err := g.primary.FeedCandidates(ctx, viewerID, g.limit, g.maxAge)
		if err != nil {
			g.logger.Warn("primary candidate query failed, falling back",
				"viewer_id", viewerID,
				"error", err)
		} else if len(candidates) > 0 {
			return candidates
		}
	}
	return g.generateFallback(ctx, viewerID)
}

// generateFallback derives the pool from follow edges and recent posts.
// Deliberately no age cutoff here: sparse accounts would otherwise starve.
func (g *Generator) generateFallback(ctx context.Context, viewerID string) []feed.Candidate {
	if g.fallback == nil {
		return []feed.Candidate{}
	}

	following, err := g.fallback.Following(ctx, viewerID)
	if err != nil {
		g.logger.Warn("fallback follow lookup failed, returning empty pool",
			"viewer_id", viewerID,
			"error", err)
		return []feed.Candidate{}
	}
	followSet := make(map[string]struct{}, len(following))
	for _, id := range following {
		followSet[id] = struct{}{}
	}

	seen, err := g.fallback.SeenPostIDs(ctx, viewerID)
	if err != nil {
		// Seen-post exclusion is best-effort; a miss only repeats posts.
		g.logger.Warn("fallback seen-post lookup failed, continuing without exclusion",
			"viewer_id", viewerID,
			"error", err)
		seen = nil
	}
	seenSet := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		seenSet[id] = struct{}{}
	}

	posts, err := g.fallback.RecentPosts(ctx, viewerID, g.limit+len(seenSet))
	if err != nil {
		g.logger.Warn("fallback post query failed, returning empty pool",
			"viewer_id", viewerID,
			"error", err)
		return []feed.Candidate{}
	}

	postIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
	}
	likeCounts, err := g.fallback.LikeCounts(ctx, postIDs)
	if err != nil {
		g.logger.Warn("fallback like-count lookup failed, using zero counts",
			"viewer_id", viewerID,
			"error", err)
		likeCounts = nil
	}

	out := make([]feed.Candidate, 0, g.limit)
	for _, p := range posts {
		if _, wasSeen := seenSet[p.ID]; wasSeen {
			continue
		}
		if likes, ok := likeCounts[p.ID]; ok {
			p.LikeCount = likes
		}
		if _, follows := followSet[p.AuthorID]; follows {
			p.IsFollowing = true
		}
		out = append(out, p)
		if len(out) >= g.limit {
			break
		}
	}
	return out
}
