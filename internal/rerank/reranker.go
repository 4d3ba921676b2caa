package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

// Defaults for the Tier-2 rerank pass.
const (
	// DefaultTopK is how many Tier-1 posts are sent to the model.
	DefaultTopK = 50

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// DefaultTemperature keeps the ordering reproducible-ish.
	DefaultTemperature = 0.2

	// DefaultMaxTokens bounds the completion size.
	DefaultMaxTokens = 400

	// snippetLength truncates post content in the prompt.
	snippetLength = 80
)

const systemPrompt = `You re-rank social feed posts for one viewer.
Each line describes a post: its short id, a relevance score in [0,1], flags
(F=viewer follows author, M=media, P=poll), and a content snippet. The
viewer's top interests follow the posts.
Prefer a mix of authors, topics, and post ages; recency and variety are
guidance, not hard rules (the pipeline enforces hard constraints later).
Respond with only a JSON array of the short ids in your preferred order,
best first, e.g. ["p03","p01","p02"].`

// Reranker re-orders the top-K scored posts via a completion call. Rerank
// never fails and never blocks the pipeline beyond its client timeout: any
// error degrades to returning the Tier-1 ordering unchanged.
type Reranker struct {
	client      CompletionClient
	topK        int
	model       string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewReranker creates a Tier-2 reranker.
func NewReranker(client CompletionClient, model string, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = DefaultModel
	}
	return &Reranker{
		client:      client,
		topK:        DefaultTopK,
		model:       model,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
		logger:      logger,
	}
}

// SetTopK overrides how many posts are sent to the model.
func (r *Reranker) SetTopK(k int) {
	if k > 0 {
		r.topK = k
	}
}

// Rerank sends the top-K posts to the completion service and merges the
// returned ordering back in. Posts beyond K pass through untouched. The
// Tier-2 score is assigned by descending rank position and the final score
// for reranked posts is the average of the two tiers.
func (r *Reranker) Rerank(ctx context.Context, posts []feed.ScoredPost, profile *feed.InterestProfile) []feed.ScoredPost {
	if r == nil || r.client == nil || len(posts) < 2 {
		return posts
	}

	k := r.topK
	if k > len(posts) {
		k = len(posts)
	}
	head, tail := posts[:k], posts[k:]

	shortIDs := make(map[string]int, k) // short id -> head index
	var prompt strings.Builder
	for i, p := range head {
		short := fmt.Sprintf("p%02d", i+1)
		shortIDs[short] = i
		fmt.Fprintf(&prompt, "%s score=%.3f flags=%s snippet=%q\n",
			short, p.Tier1Score, flagString(p.Features), snippet(p))
	}
	if top := profile.TopTopics(5); len(top) > 0 {
		prompt.WriteString("viewer interests:")
		for _, tw := range top {
			fmt.Fprintf(&prompt, " %s=%.2f", tw.Topic, tw.Weight)
		}
		prompt.WriteString("\n")
	}

	completion, err := r.client.Complete(ctx, CompletionRequest{
		Model:       r.model,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
		System:      systemPrompt,
		User:        prompt.String(),
	})
	if err != nil {
		r.logger.Warn("completion call failed, keeping tier-1 ordering", "error", err)
		return posts
	}

	order, ok := ParseOrder(completion, shortIDs)
	if !ok {
		r.logger.Warn("no parseable ordering in completion, keeping tier-1 ordering")
		return posts
	}

	reordered := applyOrder(head, order)
	out := make([]feed.ScoredPost, 0, len(posts))
	out = append(out, reordered...)
	out = append(out, tail...)
	return out
}

// ParseOrder extracts the first well-formed JSON array of short ids from
// free completion text. Unknown and duplicate ids are dropped; head posts
// absent from the response are appended afterwards in original order. The
// returned slice holds head indices. ok is false when no array parses or
// the parsed array contains no known id.
func ParseOrder(completion string, shortIDs map[string]int) ([]int, bool) {
	ids, ok := firstStringArray(completion)
	if !ok {
		return nil, false
	}

	seen := make(map[int]bool, len(ids))
	var order []int
	for _, id := range ids {
		idx, known := shortIDs[strings.TrimSpace(id)]
		if !known || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	if len(order) == 0 {
		return nil, false
	}

	// Append any head post the model skipped, keeping tier-1 order.
	for idx := 0; idx < len(shortIDs); idx++ {
		if !seen[idx] {
			order = append(order, idx)
		}
	}
	return order, true
}

// applyOrder assigns Tier-2 scores by descending rank position and averages
// the tiers into the final score.
func applyOrder(head []feed.ScoredPost, order []int) []feed.ScoredPost {
	n := len(order)
	out := make([]feed.ScoredPost, 0, n)
	for rank, idx := range order {
		p := head[idx]
		tier2 := float64(n-rank) / float64(n)
		p.Tier2Score = &tier2
		p.Score = (p.Tier1Score + tier2) / 2
		out = append(out, p)
	}
	return out
}

func flagString(v feed.FeatureVector) string {
	var b strings.Builder
	if v.Following == 1 {
		b.WriteByte('F')
	}
	if v.HasMedia {
		b.WriteByte('M')
	}
	if v.HasPoll {
		b.WriteByte('P')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// snippet returns the content excerpt the extractor carried on the vector,
// falling back to the post id for posts with no text at all.
func snippet(p feed.ScoredPost) string {
	s := p.Features.Snippet
	if s == "" {
		return p.PostID
	}
	if utf8.RuneCountInString(s) > snippetLength {
		s = string([]rune(s)[:snippetLength])
	}
	return s
}
