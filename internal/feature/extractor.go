// Package feature joins feed candidates with precomputed signals into
// normalized per-post feature vectors for the Tier-1 scorer.
package feature

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Defaults for feature extraction.
const (
	// DefaultFreshnessHalfLife controls the exponential recency decay.
	DefaultFreshnessHalfLife = 24 * time.Hour

	// topicOverlapDivisor normalizes summed topic weights before clamping.
	topicOverlapDivisor = 10.0

	// neutralTypePreference is used when no profile preference exists.
	neutralTypePreference = 0.5

	// snippetLength bounds the content excerpt kept on each vector.
	snippetLength = 80
)

// Row is a precomputed per-post engagement row materialized by an external
// job. Missing rows degrade to zero engagement signals.
type Row struct {
	PostID     string
	LikeCount  int
	ReplyCount int
}

// Embedding is the precomputed topic/keyword extraction for one post.
type Embedding struct {
	PostID   string
	Topics   []string
	Keywords []string
}

// RowSource batch-loads precomputed per-post feature rows.
type RowSource interface {
	PostFeatures(ctx context.Context, postIDs []string) (map[string]Row, error)
}

// EmbeddingSource batch-loads per-post topic/keyword embeddings.
type EmbeddingSource interface {
	ContentEmbeddings(ctx context.Context, postIDs []string) (map[string]Embedding, error)
}

// AffinitySource batch-loads viewer<->author interaction affinities.
type AffinitySource interface {
	Affinities(ctx context.Context, viewerID string, authorIDs []string) (map[string]float64, error)
}

// Extractor builds feature vectors from candidates plus precomputed signals.
type Extractor struct {
	rows       RowSource
	embeddings EmbeddingSource
	affinities AffinitySource
	halfLife   time.Duration
	logger     *slog.Logger
}

// NewExtractor creates a feature extractor. Any source may be nil; the
// corresponding signals then degrade to their neutral defaults.
func NewExtractor(rows RowSource, embeddings EmbeddingSource, affinities AffinitySource, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		rows:       rows,
		embeddings: embeddings,
		affinities: affinities,
		halfLife:   DefaultFreshnessHalfLife,
		logger:     logger,
	}
}

// SetHalfLife overrides the freshness half-life (defaults to 24h).
func (e *Extractor) SetHalfLife(d time.Duration) {
	if d > 0 {
		e.halfLife = d
	}
}

// Extract joins candidates with precomputed signals and normalizes against
// pool maxima. The three batch lookups populate disjoint maps, so they are
// dispatched concurrently and joined before normalization. A failed lookup
// logs and degrades to neutral values; Extract itself never fails.
func (e *Extractor) Extract(ctx context.Context, viewerID string, candidates []feed.Candidate, profile *feed.InterestProfile) []feed.FeatureVector {
	if len(candidates) == 0 {
		return nil
	}

	postIDs := make([]string, 0, len(candidates))
	authorSet := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		postIDs = append(postIDs, c.ID)
		authorSet[c.AuthorID] = struct{}{}
	}
	authorIDs := make([]string, 0, len(authorSet))
	for id := range authorSet {
		authorIDs = append(authorIDs, id)
	}

	var (
		rows       map[string]Row
		embeddings map[string]Embedding
		affinities map[string]float64
	)

	// The sources write to disjoint maps; ordering between them is
	// irrelevant, so fan out and join. Errors degrade per source instead
	// of failing the extraction.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.rows == nil {
			return nil
		}
		m, err := e.rows.PostFeatures(gctx, postIDs)
		if err != nil {
			e.logger.Warn("post feature load failed, degrading to candidate counts",
				"viewer_id", viewerID, "error", err)
			return nil
		}
		rows = m
		return nil
	})
	g.Go(func() error {
		if e.embeddings == nil {
			return nil
		}
		m, err := e.embeddings.ContentEmbeddings(gctx, postIDs)
		if err != nil {
			e.logger.Warn("embedding load failed, degrading to zero topic signals",
				"viewer_id", viewerID, "error", err)
			return nil
		}
		embeddings = m
		return nil
	})
	g.Go(func() error {
		if e.affinities == nil {
			return nil
		}
		m, err := e.affinities.Affinities(gctx, viewerID, authorIDs)
		if err != nil {
			e.logger.Warn("affinity load failed, degrading to zero affinity",
				"viewer_id", viewerID, "error", err)
			return nil
		}
		affinities = m
		return nil
	})
	// The goroutines above never return errors; Wait only joins them.
	_ = g.Wait()

	// Pool maxima for normalization, minimum denominator 1.
	maxLikes, maxReplies, maxFollowers := 1.0, 1.0, 1.0
	maxAffinity := 1.0
	for _, c := range candidates {
		likes, replies := engagementCounts(c, rows)
		if float64(likes) > maxLikes {
			maxLikes = float64(likes)
		}
		if float64(replies) > maxReplies {
			maxReplies = float64(replies)
		}
		if float64(c.AuthorFollowerCount) > maxFollowers {
			maxFollowers = float64(c.AuthorFollowerCount)
		}
		if a := affinities[c.AuthorID]; a > maxAffinity {
			maxAffinity = a
		}
	}

	now := time.Now()
	vectors := make([]feed.FeatureVector, 0, len(candidates))
	for _, c := range candidates {
		likes, replies := engagementCounts(c, rows)
		ageHours := now.Sub(c.CreatedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}

		v := feed.FeatureVector{
			PostID:         c.ID,
			AuthorID:       c.AuthorID,
			Snippet:        snippetOf(c.Content),
			Engagement:     feed.Clamp01(float64(likes) / maxLikes),
			Virality:       feed.Clamp01(float64(replies) / maxReplies),
			FollowerNorm:   feed.Clamp01(float64(c.AuthorFollowerCount) / maxFollowers),
			Freshness:      math.Exp(-ageHours / e.halfLife.Hours()),
			AgeHours:       ageHours,
			HasMedia:       c.HasMedia,
			HasPoll:        c.HasPoll,
			TypePreference: neutralTypePreference,
		}
		if c.IsFollowing {
			v.Following = 1.0
		}
		if c.IsFriendOfFriend {
			v.FriendOfFriend = 1.0
		}
		if a, ok := affinities[c.AuthorID]; ok {
			v.InteractionAffinity = feed.Clamp01(a / maxAffinity)
		}

		if profile != nil {
			if pref, ok := profile.TypePreferences[c.CoarseType()]; ok {
				v.TypePreference = feed.Clamp01(pref)
			}
			v.CreatorAffinity = feed.Clamp01(profile.CreatorAffinities[c.AuthorID])

			if emb, ok := embeddings[c.ID]; ok {
				v.TopicOverlap = topicOverlap(profile, emb.Topics)
				v.KeywordMatch = keywordMatch(profile, emb.Keywords)
			}
		}

		vectors = append(vectors, v)
	}
	return vectors
}

// snippetOf trims and truncates candidate content on a rune boundary.
func snippetOf(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= snippetLength {
		return content
	}
	return string([]rune(content)[:snippetLength])
}

// engagementCounts prefers the precomputed feature row and falls back to
// the denormalized counts already on the candidate.
func engagementCounts(c feed.Candidate, rows map[string]Row) (likes, replies int) {
	if row, ok := rows[c.ID]; ok {
		return row.LikeCount, row.ReplyCount
	}
	return c.LikeCount, c.ReplyCount
}

// topicOverlap sums the profile weights of topics present on the candidate,
// divides by a fixed constant, and clamps to 1.
func topicOverlap(profile *feed.InterestProfile, topics []string) float64 {
	if len(topics) == 0 || len(profile.TopicWeights) == 0 {
		return 0
	}
	sum := 0.0
	for _, topic := range topics {
		sum += profile.TopicWeights[topic]
	}
	return feed.Clamp01(sum / topicOverlapDivisor)
}

// keywordMatch is the fraction of candidate keywords that substring-match
// any of the profile's top topic keys, clamped.
func keywordMatch(profile *feed.InterestProfile, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	top := profile.TopTopics(10)
	if len(top) == 0 {
		return 0
	}

	matched := 0
	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		for _, tw := range top {
			topicLower := strings.ToLower(tw.Topic)
			if strings.Contains(topicLower, kwLower) || strings.Contains(kwLower, topicLower) {
				matched++
				break
			}
		}
	}
	return feed.Clamp01(float64(matched) / float64(len(keywords)))
}
