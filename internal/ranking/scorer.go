// Package ranking provides the deterministic Tier-1 scoring stage of the
// feed pipeline: a weighted sum over normalized per-post feature vectors,
// with calibration and experiment override support.
package ranking

import (
	"sort"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Score computes the Tier-1 score for a single feature vector as the
// weighted sum over the fixed weight table. It is a pure function: identical
// vectors and weights always produce identical scores.
func Score(v feed.FeatureVector, w *Weights) float64 {
	if w == nil {
		w = DefaultWeights()
	}

	media := 0.0
	if v.HasMedia {
		media = 1.0
	}

	// Keyword matches count toward topic overlap; the stronger of the two
	// signals wins so a post can rank on either.
	topic := v.TopicOverlap
	if v.KeywordMatch > topic {
		topic = v.KeywordMatch
	}

	return v.Engagement*w.Engagement +
		v.Virality*w.Virality +
		v.Following*w.Following +
		v.FriendOfFriend*w.FriendOfFriend +
		v.InteractionAffinity*w.InteractionAffinity +
		v.CreatorAffinity*w.CreatorAffinity +
		topic*w.TopicOverlap +
		v.Freshness*w.Freshness +
		v.TypePreference*w.TypePreference +
		media*w.MediaPresence
}

// Rank scores every vector and returns scored posts sorted by score DESC.
// Ties break on post ID ASC so the ordering is fully deterministic and
// stable across runs regardless of input order.
func Rank(vectors []feed.FeatureVector, w *Weights) []feed.ScoredPost {
	posts := make([]feed.ScoredPost, 0, len(vectors))
	for _, v := range vectors {
		s := Score(v, w)
		posts = append(posts, feed.ScoredPost{
			PostID:     v.PostID,
			AuthorID:   v.AuthorID,
			Score:      s,
			Tier1Score: s,
			Features:   v,
		})
	}
	SortByScore(posts)
	return posts
}

// SortByScore sorts scored posts by score DESC, post ID ASC. All pipeline
// stages that re-sort after adjusting scores go through this function so
// the tie-break stays consistent everywhere.
func SortByScore(posts []feed.ScoredPost) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Score > posts[j].Score {
			return true
		}
		if posts[i].Score < posts[j].Score {
			return false
		}
		return posts[i].PostID < posts[j].PostID
	})
}
