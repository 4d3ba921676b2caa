// Package inject splices posts created after a cached feed was computed
// into the served first page, without invalidating the cache.
package inject

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/feature"
	"github.com/driftwood-collective/driftfeed/internal/feed"
	"github.com/driftwood-collective/driftfeed/internal/ranking"
)

// DefaultBatchLimit bounds how many recent posts one injection pass
// considers.
const DefaultBatchLimit = 10

// DefaultSlots are the page positions injected posts land in.
var DefaultSlots = []int{0, 4, 9}

// RecentSource fetches posts created strictly after the given instant,
// newest first.
type RecentSource interface {
	PostsCreatedAfter(ctx context.Context, after time.Time, limit int) ([]feed.Candidate, error)
}

// Injector quick-scores fresh posts and splices them into a served page.
// Injection is best-effort: any failure returns the page unchanged.
type Injector struct {
	source    RecentSource
	extractor *feature.Extractor
	weights   *ranking.Weights
	slots     []int
	batch     int
	logger    *slog.Logger
}

// NewInjector creates a realtime injector.
func NewInjector(source RecentSource, extractor *feature.Extractor, weights *ranking.Weights, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	return &Injector{
		source:    source,
		extractor: extractor,
		weights:   weights,
		slots:     DefaultSlots,
		batch:     DefaultBatchLimit,
		logger:    logger,
	}
}

// SetSlots overrides the injection positions.
func (in *Injector) SetSlots(slots []int) {
	if len(slots) > 0 {
		in.slots = slots
	}
}

// Inject returns the page ids with fresh posts spliced into the configured
// slots. cachedIDs is the full cached id set, used to skip posts the viewer
// could see on a later page. Runs only for the first page; callers pass the
// page as served. On any failure the original page is returned unchanged.
func (in *Injector) Inject(ctx context.Context, viewerID string, pageIDs []string, cachedIDs []string, computedAt time.Time, profile *feed.InterestProfile) []string {
	if in == nil || in.source == nil || in.extractor == nil {
		return pageIDs
	}

	recent, err := in.source.PostsCreatedAfter(ctx, computedAt, in.batch)
	if err != nil {
		in.logger.Warn("recent post fetch failed, serving cached page", "user_id", viewerID, "error", err)
		return pageIDs
	}
	if len(recent) == 0 {
		return pageIDs
	}

	known := make(map[string]bool, len(cachedIDs))
	for _, id := range cachedIDs {
		known[id] = true
	}

	eligible := recent[:0]
	for _, c := range recent {
		if c.AuthorID == viewerID || known[c.ID] {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return pageIDs
	}

	// Tier-1 only: the set is small and time-sensitive, so the rerank and
	// diversity stages are skipped.
	vectors := in.extractor.Extract(ctx, viewerID, eligible, profile)
	scored := ranking.Rank(vectors, in.weights)

	n := len(in.slots)
	if len(scored) < n {
		n = len(scored)
	}

	out := append([]string(nil), pageIDs...)
	for i := 0; i < n; i++ {
		pos := in.slots[i]
		if pos > len(out) {
			pos = len(out)
		}
		out = append(out, "")
		copy(out[pos+1:], out[pos:])
		out[pos] = scored[i].PostID
	}
	return out
}
