package rerank

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/driftwood-collective/driftfeed/internal/feed"
)

type fakeClient struct {
	response string
	err      error
	lastReq  CompletionRequest
}

func (c *fakeClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	c.lastReq = req
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func scored(ids ...string) []feed.ScoredPost {
	out := make([]feed.ScoredPost, len(ids))
	for i, id := range ids {
		score := 1.0 - float64(i)*0.1
		out[i] = feed.ScoredPost{
			PostID:     id,
			AuthorID:   "a-" + id,
			Score:      score,
			Tier1Score: score,
		}
	}
	return out
}

func ids(posts []feed.ScoredPost) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.PostID
	}
	return out
}

func TestRerankAppliesModelOrdering(t *testing.T) {
	client := &fakeClient{response: `["p03","p01","p02"]`}
	r := NewReranker(client, "", nil)

	got := r.Rerank(context.Background(), scored("x", "y", "z"), nil)

	want := []string{"z", "x", "y"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("order = %v, want %v", ids(got), want)
	}

	// Tier-2 score descends with rank and the final score is the average.
	for i, p := range got {
		if p.Tier2Score == nil {
			t.Fatalf("post %d missing tier-2 score", i)
		}
		wantT2 := float64(3-i) / 3
		if *p.Tier2Score != wantT2 {
			t.Errorf("post %d tier2 = %v, want %v", i, *p.Tier2Score, wantT2)
		}
		if p.Score != (p.Tier1Score+wantT2)/2 {
			t.Errorf("post %d score = %v, want tier average", i, p.Score)
		}
	}
}

func TestRerankClientErrorKeepsInputOrder(t *testing.T) {
	client := &fakeClient{err: errors.New("provider down")}
	r := NewReranker(client, "", nil)

	in := scored("a", "b", "c")
	got := r.Rerank(context.Background(), in, nil)

	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want input unchanged on client error", ids(got))
	}
	for _, p := range got {
		if p.Tier2Score != nil {
			t.Error("tier-2 score must stay unset on fallback")
		}
	}
}

func TestRerankMalformedResponseKeepsInputOrder(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"prose only", "I think the best post is p02."},
		{"empty array", "[]"},
		{"unknown ids only", `["p99","p42"]`},
		{"numbers", "[1, 2, 3]"},
		{"unterminated", `["p01", "p02"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReranker(&fakeClient{response: tc.response}, "", nil)
			in := scored("a", "b", "c")
			got := r.Rerank(context.Background(), in, nil)
			if !reflect.DeepEqual(ids(got), ids(in)) {
				t.Errorf("got %v, want input order", ids(got))
			}
		})
	}
}

func TestRerankPartialResponseAppendsMissing(t *testing.T) {
	// Model only mentions p02; the rest keep their tier-1 relative order.
	client := &fakeClient{response: `["p02"]`}
	r := NewReranker(client, "", nil)

	got := r.Rerank(context.Background(), scored("a", "b", "c"), nil)

	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestRerankDropsDuplicateIDs(t *testing.T) {
	client := &fakeClient{response: `["p02","p02","p01","p03"]`}
	r := NewReranker(client, "", nil)

	got := r.Rerank(context.Background(), scored("a", "b", "c"), nil)

	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestRerankArrayEmbeddedInProse(t *testing.T) {
	client := &fakeClient{response: "Here is my ranking:\n```json\n[\"p02\", \"p01\"]\n```\nDone."}
	r := NewReranker(client, "", nil)

	got := r.Rerank(context.Background(), scored("a", "b"), nil)

	want := []string{"b", "a"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
}

func TestRerankOnlySendsTopK(t *testing.T) {
	client := &fakeClient{response: `["p02","p01"]`}
	r := NewReranker(client, "", nil)
	r.SetTopK(2)

	got := r.Rerank(context.Background(), scored("a", "b", "c", "d"), nil)

	// Head is reordered, tail passes through untouched.
	want := []string{"b", "a", "c", "d"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("order = %v, want %v", ids(got), want)
	}
	if got[2].Tier2Score != nil || got[3].Tier2Score != nil {
		t.Error("posts beyond top-K must not carry tier-2 scores")
	}
}

func TestRerankPromptIncludesViewerInterests(t *testing.T) {
	client := &fakeClient{response: `["p01","p02"]`}
	r := NewReranker(client, "", nil)

	profile := &feed.InterestProfile{
		UserID:       "u1",
		TopicWeights: map[string]float64{"golang": 3, "music": 1},
	}
	r.Rerank(context.Background(), scored("a", "b"), profile)

	if !containsAll(client.lastReq.User, "golang", "music") {
		t.Errorf("prompt missing viewer interests: %q", client.lastReq.User)
	}
}

func TestRerankPromptCarriesContentSnippets(t *testing.T) {
	client := &fakeClient{response: `["p01","p02"]`}
	r := NewReranker(client, "", nil)

	posts := scored("a", "b")
	posts[0].Features.Snippet = "sourdough starter day three, bubbling at last"

	r.Rerank(context.Background(), posts, nil)

	if !strings.Contains(client.lastReq.User, "sourdough starter day three") {
		t.Errorf("prompt missing post content: %q", client.lastReq.User)
	}
	if !strings.Contains(client.lastReq.User, `"b"`) {
		t.Errorf("snippet-less post should fall back to its id: %q", client.lastReq.User)
	}
}

func TestRerankPromptTruncatesLongSnippets(t *testing.T) {
	client := &fakeClient{response: `["p01","p02"]`}
	r := NewReranker(client, "", nil)

	posts := scored("a", "b")
	posts[0].Features.Snippet = strings.Repeat("x", 500)

	r.Rerank(context.Background(), posts, nil)

	if strings.Contains(client.lastReq.User, strings.Repeat("x", snippetLength+1)) {
		t.Errorf("prompt carries more than %d snippet chars", snippetLength)
	}
	if !strings.Contains(client.lastReq.User, strings.Repeat("x", snippetLength)) {
		t.Error("prompt should keep the truncated snippet")
	}
}

func TestRerankSinglePostSkipsCall(t *testing.T) {
	client := &fakeClient{response: `["p01"]`}
	r := NewReranker(client, "", nil)

	in := scored("only")
	got := r.Rerank(context.Background(), in, nil)

	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want input unchanged", ids(got))
	}
	if client.lastReq.Model != "" {
		t.Error("single-post input must not reach the client")
	}
}

func TestFirstStringArray(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
		ok   bool
	}{
		{"bare array", `["a","b"]`, []string{"a", "b"}, true},
		{"leading prose", `ranking: ["a"]`, []string{"a"}, true},
		{"skips non-string array", `[1,2] then ["a"]`, []string{"a"}, true},
		{"nested outer fails inner wins", `[["a","b"]]`, []string{"a", "b"}, true},
		{"no array", "no brackets here", nil, false},
		{"unterminated", `["a",`, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := firstStringArray(tc.text)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if tc.ok && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
