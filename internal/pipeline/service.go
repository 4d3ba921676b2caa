// Package pipeline composes the feed stages into one total entry point.
// GenerateFeed never fails: every stage degrades to a documented fallback
// and, in the worst case, the response carries an empty fallback marker the
// caller substitutes with its own default listing.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftwood-collective/driftfeed/internal/candidate"
	"github.com/driftwood-collective/driftfeed/internal/diversity"
	"github.com/driftwood-collective/driftfeed/internal/experiment"
	"github.com/driftwood-collective/driftfeed/internal/feature"
	"github.com/driftwood-collective/driftfeed/internal/feed"
	"github.com/driftwood-collective/driftfeed/internal/feedcache"
	"github.com/driftwood-collective/driftfeed/internal/inject"
	"github.com/driftwood-collective/driftfeed/internal/profile"
	"github.com/driftwood-collective/driftfeed/internal/ranking"
	"github.com/driftwood-collective/driftfeed/internal/rerank"
)

// Source tags where a feed response came from.
type Source string

const (
	// SourceCache means the response was served from a live cache entry.
	SourceCache Source = "cache"
	// SourcePipeline means the full ranking pipeline ran for this request.
	SourcePipeline Source = "pipeline"
	// SourceFallback means every stage failed; the caller should
	// substitute its own default listing.
	SourceFallback Source = "fallback"
)

// Response is the structured result of one feed request.
type Response struct {
	PostIDs []string  `json:"post_ids"`
	Scores  []float64 `json:"scores,omitempty"`
	Cursor  string    `json:"cursor,omitempty"`
	HasMore bool      `json:"has_more"`
	Source  Source    `json:"source"`

	ExperimentID string    `json:"experiment_id,omitempty"`
	Variant      string    `json:"variant,omitempty"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Service runs the feed pipeline. Optional collaborators (assignor,
// reranker, injector, metrics) may be nil; the pipeline proceeds without
// them.
type Service struct {
	generator *candidate.Generator
	profiles  *profile.Provider
	extractor *feature.Extractor
	weights   *ranking.Weights
	reranker  *rerank.Reranker
	diversity *diversity.Reranker
	cache     *feedcache.Cache
	injector  *inject.Injector
	assignor  *experiment.Assignor
	metrics   *Metrics
	logger    *slog.Logger
}

// Config wires a Service.
type Config struct {
	Generator *candidate.Generator
	Profiles  *profile.Provider
	Extractor *feature.Extractor
	Weights   *ranking.Weights
	Reranker  *rerank.Reranker
	Diversity *diversity.Reranker
	Cache     *feedcache.Cache
	Injector  *inject.Injector
	Assignor  *experiment.Assignor
	Metrics   *Metrics
	Logger    *slog.Logger
}

// NewService creates the orchestrator.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	weights := cfg.Weights
	if weights == nil {
		weights = ranking.DefaultWeights()
	}
	div := cfg.Diversity
	if div == nil {
		div = diversity.NewReranker(diversity.DefaultConfig(), logger)
	}
	cache := cfg.Cache
	if cache == nil {
		cache = feedcache.NewCache(feedcache.NewInMemoryStore(), 0, 0, logger)
	}
	return &Service{
		generator: cfg.Generator,
		profiles:  cfg.Profiles,
		extractor: cfg.Extractor,
		weights:   weights,
		reranker:  cfg.Reranker,
		diversity: div,
		cache:     cache,
		injector:  cfg.Injector,
		assignor:  cfg.Assignor,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// GenerateFeed serves one feed page. It is a total function: any internal
// failure degrades to a structured fallback response instead of an error.
func (s *Service) GenerateFeed(ctx context.Context, userID, cursor string, forceRefresh bool) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("feed pipeline panicked, serving fallback", "user_id", userID, "panic", r)
			resp = s.fallback()
		}
	}()

	var assignment *experiment.Assignment
	if s.assignor != nil {
		assignment = s.assignor.Assign(ctx, userID)
	}

	if !forceRefresh && s.cache != nil {
		start := time.Now()
		entry, ok := s.cache.Lookup(ctx, userID)
		s.observeStage(StageCacheRead, start)
		if ok {
			return s.serveFromCache(ctx, userID, cursor, entry)
		}
	}

	return s.runPipeline(ctx, userID, cursor, assignment)
}

// InvalidateFeed evicts the user's cached feed and in-process profile so
// the next request recomputes both.
func (s *Service) InvalidateFeed(ctx context.Context, userID string) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("feed cache invalidate failed", "user_id", userID, "error", err)
		}
	}
	if s.profiles != nil {
		s.profiles.Invalidate(userID)
	}
}

func (s *Service) serveFromCache(ctx context.Context, userID, cursor string, entry *feedcache.Entry) Response {
	page := s.cache.Paginate(entry, cursor)

	postIDs := page.PostIDs
	if cursor == "" && s.injector != nil {
		start := time.Now()
		var viewerProfile *feed.InterestProfile
		if s.profiles != nil {
			viewerProfile = s.profiles.Get(ctx, userID)
		}
		injected := s.injector.Inject(ctx, userID, postIDs, entry.PostIDs, entry.ComputedAt, viewerProfile)
		s.observeStage(StageInject, start)
		if n := len(injected) - len(postIDs); n > 0 && s.metrics != nil {
			s.metrics.AddInjectedPosts(n)
		}
		postIDs = injected
	}

	if s.metrics != nil {
		s.metrics.IncRequests(string(SourceCache))
	}
	return Response{
		PostIDs:      postIDs,
		Scores:       page.Scores,
		Cursor:       pageCursor(page.PostIDs, page.HasMore),
		HasMore:      page.HasMore,
		Source:       SourceCache,
		ExperimentID: entry.ExperimentID,
		Variant:      entry.Variant,
		ComputedAt:   entry.ComputedAt,
	}
}

func (s *Service) runPipeline(ctx context.Context, userID, cursor string, assignment *experiment.Assignment) Response {
	start := time.Now()
	candidates := s.generator.Generate(ctx, userID)
	s.observeStage(StageCandidates, start)
	if len(candidates) == 0 {
		s.logger.Warn("no feed candidates, serving fallback", "user_id", userID)
		if s.metrics != nil {
			s.metrics.IncStageDegraded(StageCandidates)
		}
		return s.fallback()
	}

	start = time.Now()
	var viewerProfile *feed.InterestProfile
	if s.profiles != nil {
		viewerProfile = s.profiles.Get(ctx, userID)
	}
	s.observeStage(StageProfile, start)

	var variantCfg *experiment.VariantConfig
	if s.assignor != nil && assignment != nil {
		variantCfg = s.assignor.VariantConfig(ctx, assignment)
	}
	weights := s.weights
	if variantCfg != nil && variantCfg.Weights != nil {
		weights = ranking.Merge(weights, variantCfg.Weights)
	}

	start = time.Now()
	vectors := s.extractor.Extract(ctx, userID, candidates, viewerProfile)
	s.observeStage(StageFeatures, start)

	start = time.Now()
	scored := ranking.Rank(vectors, weights)
	s.observeStage(StageScore, start)

	if s.reranker != nil {
		start = time.Now()
		reranked := s.reranker.Rerank(ctx, scored, viewerProfile)
		s.observeStage(StageRerank, start)
		if s.metrics != nil && len(reranked) > 0 && reranked[0].Tier2Score == nil {
			s.metrics.IncRerankFallbacks()
		}
		scored = reranked
	}

	start = time.Now()
	scored = s.diversity.Apply(scored, variantCfg)
	s.observeStage(StageDiversity, start)

	experimentID, variant := "", ""
	if assignment != nil {
		experimentID, variant = assignment.ExperimentID, assignment.Variant
	}

	computedAt := time.Now()
	if s.cache != nil {
		start = time.Now()
		if err := s.cache.Write(ctx, userID, scored, experimentID, variant); err != nil {
			s.logger.Warn("feed cache write failed, serving uncached result", "user_id", userID, "error", err)
			if s.metrics != nil {
				s.metrics.IncStageDegraded(StageCacheWrite)
			}
		}
		s.observeStage(StageCacheWrite, start)
	}

	entry := feedcache.Entry{
		UserID:       userID,
		PostIDs:      make([]string, len(scored)),
		Scores:       make([]float64, len(scored)),
		ExperimentID: experimentID,
		Variant:      variant,
		ComputedAt:   computedAt,
	}
	for i, p := range scored {
		entry.PostIDs[i] = p.PostID
		entry.Scores[i] = p.Score
	}
	page := s.cache.Paginate(&entry, cursor)

	if s.metrics != nil {
		s.metrics.IncRequests(string(SourcePipeline))
	}
	return Response{
		PostIDs:      page.PostIDs,
		Scores:       page.Scores,
		Cursor:       pageCursor(page.PostIDs, page.HasMore),
		HasMore:      page.HasMore,
		Source:       SourcePipeline,
		ExperimentID: experimentID,
		Variant:      variant,
		ComputedAt:   computedAt,
	}
}

// fallback is the worst-case response: empty and explicitly marked so the
// caller can substitute a default listing.
func (s *Service) fallback() Response {
	if s.metrics != nil {
		s.metrics.IncRequests(string(SourceFallback))
	}
	return Response{
		PostIDs:    []string{},
		Source:     SourceFallback,
		ComputedAt: time.Now(),
	}
}

// pageCursor is the id of the last post on the page, set only when more
// posts remain.
func pageCursor(pageIDs []string, hasMore bool) string {
	if !hasMore || len(pageIDs) == 0 {
		return ""
	}
	return pageIDs[len(pageIDs)-1]
}

func (s *Service) observeStage(stage string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStageDuration(stage, time.Since(start).Seconds())
	}
}
