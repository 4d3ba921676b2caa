// Package diversity applies ordered post-processing constraints to a ranked
// feed: experiment scalar adjustments, a new-creator boost, a per-author cap,
// a same-type run cap, and a freshness floor. Every pass is idempotent when
// its target invariant already holds.
package diversity

import (
	"log/slog"
	"math"
	"slices"

	"github.com/driftwood-collective/driftfeed/internal/experiment"
	"github.com/driftwood-collective/driftfeed/internal/feed"
	"github.com/driftwood-collective/driftfeed/internal/ranking"
)

// Config holds the tunable constraint parameters.
type Config struct {
	// NewCreatorBoost multiplies the score of posts from authors with a
	// near-zero normalized follower count.
	NewCreatorBoost float64

	// NewCreatorThreshold is the FollowerNorm value below which an author
	// counts as a new creator.
	NewCreatorThreshold float64

	// AuthorCap is the maximum number of posts per author inside the
	// leading AuthorWindow positions.
	AuthorCap    int
	AuthorWindow int

	// MaxTypeRun is the longest allowed run of consecutive posts sharing a
	// coarse type.
	MaxTypeRun int

	// FreshWindow, FreshFraction and FreshMaxAgeHours define the freshness
	// floor: at least FreshFraction of the leading FreshWindow posts must
	// be no older than FreshMaxAgeHours.
	FreshWindow      int
	FreshFraction    float64
	FreshMaxAgeHours float64
}

// DefaultConfig returns the production constraint parameters.
func DefaultConfig() Config {
	return Config{
		NewCreatorBoost:     1.2,
		NewCreatorThreshold: 0.01,
		AuthorCap:           2,
		AuthorWindow:        20,
		MaxTypeRun:          3,
		FreshWindow:         10,
		FreshFraction:       0.3,
		FreshMaxAgeHours:    6,
	}
}

// Reranker runs the constraint passes in fixed order.
type Reranker struct {
	cfg    Config
	logger *slog.Logger
}

// NewReranker creates a diversity reranker.
func NewReranker(cfg Config, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AuthorCap <= 0 {
		cfg.AuthorCap = 2
	}
	if cfg.AuthorWindow <= 0 {
		cfg.AuthorWindow = 20
	}
	if cfg.MaxTypeRun <= 0 {
		cfg.MaxTypeRun = 3
	}
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = 10
	}
	return &Reranker{cfg: cfg, logger: logger}
}

// Apply runs all passes over the ranked list and returns the constrained
// ordering. The input slice is not modified. variant may be nil when the
// viewer is outside every experiment.
func (r *Reranker) Apply(posts []feed.ScoredPost, variant *experiment.VariantConfig) []feed.ScoredPost {
	if len(posts) == 0 {
		return posts
	}
	out := slices.Clone(posts)
	out = r.applyExperimentAdjustments(out, variant)
	out = r.applyNewCreatorBoost(out)
	out = r.applyAuthorCap(out)
	out = r.applyTypeRunCap(out)
	out = r.applyFreshnessFloor(out)
	return out
}

// applyExperimentAdjustments rescores under the variant's scalar knobs and
// re-sorts. The diversity weight demotes repeated authors geometrically: the
// n-th earlier post by the same author multiplies the score by the weight
// once more. The freshness tilt adds a term proportional to the freshness
// feature. A nil variant or neutral values leave the ordering unchanged.
func (r *Reranker) applyExperimentAdjustments(posts []feed.ScoredPost, variant *experiment.VariantConfig) []feed.ScoredPost {
	if variant == nil {
		return posts
	}
	dw := variant.DiversityWeight
	if dw == 0 {
		dw = 1
	}
	if dw == 1 && variant.FreshnessTilt == 0 {
		return posts
	}

	seen := make(map[string]int, len(posts))
	for i := range posts {
		p := &posts[i]
		if n := seen[p.AuthorID]; n > 0 && dw != 1 {
			p.Score *= math.Pow(dw, float64(n))
		}
		seen[p.AuthorID]++
		p.Score += variant.FreshnessTilt * p.Features.Freshness
	}
	ranking.SortByScore(posts)
	return posts
}

// applyNewCreatorBoost multiplies the score of posts from near-zero-follower
// authors and re-sorts.
func (r *Reranker) applyNewCreatorBoost(posts []feed.ScoredPost) []feed.ScoredPost {
	if r.cfg.NewCreatorBoost <= 0 || r.cfg.NewCreatorBoost == 1 {
		return posts
	}
	boosted := false
	for i := range posts {
		if posts[i].Features.FollowerNorm < r.cfg.NewCreatorThreshold {
			posts[i].Score *= r.cfg.NewCreatorBoost
			boosted = true
		}
	}
	if boosted {
		ranking.SortByScore(posts)
	}
	return posts
}

// applyAuthorCap limits each author to AuthorCap posts inside the leading
// window. Excess posts are deferred and reinserted immediately after the
// window in their original relative order.
func (r *Reranker) applyAuthorCap(posts []feed.ScoredPost) []feed.ScoredPost {
	window := r.cfg.AuthorWindow
	if len(posts) <= r.cfg.AuthorCap {
		return posts
	}

	counts := make(map[string]int)
	head := make([]feed.ScoredPost, 0, min(window, len(posts)))
	var deferred []feed.ScoredPost

	i := 0
	for ; i < len(posts) && len(head) < window; i++ {
		p := posts[i]
		if counts[p.AuthorID] >= r.cfg.AuthorCap {
			deferred = append(deferred, p)
			continue
		}
		counts[p.AuthorID]++
		head = append(head, p)
	}

	out := make([]feed.ScoredPost, 0, len(posts))
	out = append(out, head...)
	out = append(out, deferred...)
	out = append(out, posts[i:]...)
	return out
}

// applyTypeRunCap breaks runs longer than MaxTypeRun of the same coarse
// type. A violating post is pulled and reinserted at the first later
// position that does not create a new violation, or appended at the end when
// no such position exists.
func (r *Reranker) applyTypeRunCap(posts []feed.ScoredPost) []feed.ScoredPost {
	maxRun := r.cfg.MaxTypeRun
	out := posts
	for i := 0; i < len(out); i++ {
		if runEndingAt(out, i) <= maxRun {
			continue
		}
		p := out[i]
		out = append(out[:i:i], out[i+1:]...)

		inserted := false
		for j := i; j <= len(out); j++ {
			if fitsAt(out, j, p, maxRun) {
				out = slices.Insert(out, j, p)
				inserted = true
				break
			}
		}
		if !inserted {
			// No position satisfies the cap; accept the trailing run and
			// move on rather than retry forever.
			out = append(out, p)
			continue
		}
		i--
	}
	return out
}

// runEndingAt reports the length of the same-type run ending at index i.
func runEndingAt(posts []feed.ScoredPost, i int) int {
	t := posts[i].Features.CoarseType()
	n := 1
	for j := i - 1; j >= 0 && posts[j].Features.CoarseType() == t; j-- {
		n++
	}
	return n
}

// fitsAt reports whether inserting p at index j keeps every run within
// maxRun.
func fitsAt(posts []feed.ScoredPost, j int, p feed.ScoredPost, maxRun int) bool {
	t := p.Features.CoarseType()
	before := 0
	for i := j - 1; i >= 0 && posts[i].Features.CoarseType() == t; i-- {
		before++
	}
	after := 0
	for i := j; i < len(posts) && posts[i].Features.CoarseType() == t; i++ {
		after++
	}
	return before+1+after <= maxRun
}

// applyFreshnessFloor guarantees that a fraction of the leading window is
// recent. Shortfall is filled by swapping fresh posts from the remainder
// into stale slots spaced evenly across the window.
func (r *Reranker) applyFreshnessFloor(posts []feed.ScoredPost) []feed.ScoredPost {
	window := min(r.cfg.FreshWindow, len(posts))
	if window == 0 || r.cfg.FreshFraction <= 0 {
		return posts
	}
	need := int(math.Ceil(r.cfg.FreshFraction * float64(window)))

	fresh := func(p feed.ScoredPost) bool {
		return p.Features.AgeHours <= r.cfg.FreshMaxAgeHours
	}

	have := 0
	for _, p := range posts[:window] {
		if fresh(p) {
			have++
		}
	}
	if have >= need {
		return posts
	}
	shortfall := need - have

	var candidates []int
	for i := window; i < len(posts) && len(candidates) < shortfall; i++ {
		if fresh(posts[i]) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return posts
	}

	var staleSlots []int
	for j := 0; j < window; j++ {
		if !fresh(posts[j]) {
			staleSlots = append(staleSlots, j)
		}
	}

	used := make(map[int]bool, len(candidates))
	for k, ci := range candidates {
		desired := (k + 1) * window / (len(candidates) + 1)
		slot := nearestUnusedSlot(staleSlots, used, desired)
		if slot < 0 {
			break
		}
		used[slot] = true
		posts[slot], posts[ci] = posts[ci], posts[slot]
	}
	return posts
}

// nearestUnusedSlot picks the stale slot closest to the desired position.
func nearestUnusedSlot(slots []int, used map[int]bool, desired int) int {
	best, bestDist := -1, math.MaxInt
	for _, s := range slots {
		if used[s] {
			continue
		}
		d := s - desired
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}
