// Package feed defines the shared domain types that flow through the
// feed-ranking pipeline: candidates, per-viewer feature vectors, interest
// profiles, and scored posts.
package feed

import (
	"time"
)

// PostType is the coarse content classification of a post.
type PostType string

const (
	// PostTypeText is a plain text post.
	PostTypeText PostType = "text"
	// PostTypeMedia is a post carrying at least one media attachment.
	PostTypeMedia PostType = "media"
	// PostTypePoll is a poll post.
	PostTypePoll PostType = "poll"
)

// Candidate is an ephemeral per-request record describing one post eligible
// for a viewer's feed. Rows arrive denormalized from the candidate query so
// no further joins are needed inside the pipeline. Candidates are never
// persisted beyond a single pipeline run.
type Candidate struct {
	ID       string `json:"id"`
	AuthorID string `json:"author_id"`
	SpaceID  string `json:"space_id,omitempty"`

	Content   string    `json:"content"`
	Type      PostType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	LikeCount  int  `json:"like_count"`
	ReplyCount int  `json:"reply_count"`
	HasMedia   bool `json:"has_media"`
	HasPoll    bool `json:"has_poll"`

	// Denormalized author fields.
	AuthorName          string `json:"author_name"`
	AuthorAvatarURL     string `json:"author_avatar_url,omitempty"`
	AuthorVerified      bool   `json:"author_verified"`
	AuthorFollowerCount int    `json:"author_follower_count"`

	// Viewer-relative social flags.
	IsFollowing      bool `json:"is_following"`
	IsFriendOfFriend bool `json:"is_friend_of_friend"`
}

// CoarseType maps a candidate to its coarse type for diversity constraints.
// Poll takes precedence over media when both flags are set.
func (c Candidate) CoarseType() PostType {
	switch {
	case c.HasPoll:
		return PostTypePoll
	case c.HasMedia:
		return PostTypeMedia
	default:
		return PostTypeText
	}
}

// FeatureVector is the ephemeral per (post, viewer) numeric record the
// scorer consumes. Every field except AgeHours and the boolean flags is
// normalized to [0, 1]; the extractor clamps on the way in.
type FeatureVector struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id"`

	// Snippet is a truncated content excerpt carried for the rerank
	// prompt; candidates themselves are discarded after extraction.
	Snippet string `json:"snippet,omitempty"`

	Engagement          float64 `json:"engagement"`           // likes / pool max
	Virality            float64 `json:"virality"`             // replies / pool max
	Following           float64 `json:"following"`            // 1 if viewer follows author
	FriendOfFriend      float64 `json:"friend_of_friend"`     // 1 if author is in second-degree graph
	InteractionAffinity float64 `json:"interaction_affinity"` // viewer<->author affinity / pool max
	CreatorAffinity     float64 `json:"creator_affinity"`     // from the profile's bounded creator map
	TopicOverlap        float64 `json:"topic_overlap"`
	KeywordMatch        float64 `json:"keyword_match"`
	TypePreference      float64 `json:"type_preference"` // profile preference for the post's coarse type
	FollowerNorm        float64 `json:"follower_norm"`   // author followers / pool max
	Freshness           float64 `json:"freshness"`       // exp(-age_hours / half_life)

	AgeHours float64 `json:"age_hours"`
	HasMedia bool    `json:"has_media"`
	HasPoll  bool    `json:"has_poll"`
}

// CoarseType reports the coarse post type recorded on the vector.
func (v FeatureVector) CoarseType() PostType {
	switch {
	case v.HasPoll:
		return PostTypePoll
	case v.HasMedia:
		return PostTypeMedia
	default:
		return PostTypeText
	}
}

// InterestProfile is the durable per-user preference aggregate produced by
// an external aggregation job. Profiles are replaced wholesale on refresh,
// never mutated in place.
type InterestProfile struct {
	UserID string `json:"user_id"`

	// TopicWeights maps topic -> accumulated interest weight.
	TopicWeights map[string]float64 `json:"topic_weights"`

	// TypePreferences maps coarse post type -> preference in [0, 1].
	TypePreferences map[PostType]float64 `json:"type_preferences"`

	// CreatorAffinities is a bounded map of author id -> affinity.
	CreatorAffinities map[string]float64 `json:"creator_affinities"`

	// InteractionCount summarizes the volume behind the aggregates.
	InteractionCount int       `json:"interaction_count"`
	LastActiveAt     time.Time `json:"last_active_at"`

	ComputedAt time.Time `json:"computed_at"`
}

// TopTopics returns up to n topics ordered by descending weight, ties broken
// by topic name for deterministic output.
func (p *InterestProfile) TopTopics(n int) []TopicWeight {
	if p == nil || len(p.TopicWeights) == 0 || n <= 0 {
		return nil
	}
	out := make([]TopicWeight, 0, len(p.TopicWeights))
	for topic, w := range p.TopicWeights {
		out = append(out, TopicWeight{Topic: topic, Weight: w})
	}
	sortTopicWeights(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TopicWeight pairs a topic with its profile weight.
type TopicWeight struct {
	Topic  string  `json:"topic"`
	Weight float64 `json:"weight"`
}

func sortTopicWeights(tw []TopicWeight) {
	// Insertion sort keeps this allocation-free; profiles hold tens of
	// topics at most.
	for i := 1; i < len(tw); i++ {
		for j := i; j > 0; j-- {
			if tw[j].Weight > tw[j-1].Weight ||
				(tw[j].Weight == tw[j-1].Weight && tw[j].Topic < tw[j-1].Topic) {
				tw[j], tw[j-1] = tw[j-1], tw[j]
			} else {
				break
			}
		}
	}
}

// ScoredPost is the pipeline's output unit. Ordering of the ScoredPost slice
// is the deliverable; the struct itself carries enough signal for the
// downstream diversity passes to work without re-fetching candidates.
type ScoredPost struct {
	PostID   string `json:"post_id"`
	AuthorID string `json:"author_id"`

	Score      float64  `json:"score"`
	Tier1Score float64  `json:"tier1_score"`
	Tier2Score *float64 `json:"tier2_score,omitempty"`

	Features FeatureVector `json:"features"`
}

// Clamp01 clamps v to the [0, 1] interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
