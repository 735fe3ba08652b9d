// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// --- helpers ---

type fakeScorer struct {
	fn    func(chunk []types.Candidate) ([]Scored, error)
	calls int
}

func (f *fakeScorer) Score(_ context.Context, _ types.Reference, chunk []types.Candidate) ([]Scored, error) {
	f.calls++
	return f.fn(chunk)
}

type fakeModel struct {
	reply  string
	err    error
	prompt string
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Generate(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.reply, m.err
}

func cands(query int, urls ...string) []types.Candidate {
	out := make([]types.Candidate, len(urls))
	for i, u := range urls {
		out[i] = types.Candidate{URL: u, QueryIndex: query, Title: u}
	}
	return out
}

func numbered(query, n int) []types.Candidate {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://q%d.example/%d", query, i)
	}
	return cands(query, urls...)
}

func testRanker(s Scorer) *Ranker {
	return &Ranker{Scorer: s, Policy: httputil.Policy{MaxAttempts: 2, Timeout: time.Second, Backoff: time.Millisecond}}
}

// reverse scores candidates so the last in a chunk ranks first.
func reverse(chunk []types.Candidate) ([]Scored, error) {
	out := make([]Scored, len(chunk))
	for i, c := range chunk {
		out[i] = Scored{URL: c.URL, Score: float64(i)}
	}
	return out, nil
}

// --- Chunk ---

func TestChunkKeepsQueryGroupsTogether(t *testing.T) {
	in := append(append(numbered(0, 6), numbered(1, 6)...), numbered(2, 3)...)
	chunks := Chunk(in, 10)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 6)
	assert.Len(t, chunks[1], 9)
	for _, c := range chunks[1] {
		assert.NotEqual(t, 0, c.QueryIndex)
	}
}

func TestChunkSplitsOversizedGroup(t *testing.T) {
	in := append(numbered(0, 23), numbered(1, 2)...)
	chunks := Chunk(in, 10)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)
}

func TestChunkCapsSize(t *testing.T) {
	for _, size := range []int{0, -1, 25} {
		for _, ch := range Chunk(numbered(0, 35), size) {
			assert.LessOrEqual(t, len(ch), MaxChunk)
		}
	}
	assert.Empty(t, Chunk(nil, 10))
}

// --- Rank ---

func TestRankUsesScorer(t *testing.T) {
	s := &fakeScorer{fn: reverse}
	res := testRanker(s).Rank(context.Background(), types.Reference{ID: 1}, cands(0, "https://a", "https://b", "https://c"))

	assert.Empty(t, res.Fallbacks)
	require.Len(t, res.Candidates, 3)
	assert.Equal(t, "https://c", res.Candidates[0].URL)
	assert.Equal(t, "https://a", res.Candidates[2].URL)
	for i, c := range res.Candidates {
		assert.Equal(t, i+1, c.RankPosition)
	}
}

func TestRankPositionsContiguousAcrossChunks(t *testing.T) {
	in := append(numbered(0, 8), numbered(1, 8)...)
	res := testRanker(&fakeScorer{fn: reverse}).Rank(context.Background(), types.Reference{}, in)

	assert.Equal(t, 2, res.Chunks)
	require.Len(t, res.Candidates, 16)
	for i, c := range res.Candidates {
		assert.Equal(t, i+1, c.RankPosition)
	}
	// Chunk order is preserved: every query 0 candidate precedes query 1.
	assert.Equal(t, 0, res.Candidates[7].QueryIndex)
	assert.Equal(t, 1, res.Candidates[8].QueryIndex)
}

func TestRankInvalidResponsesFallBack(t *testing.T) {
	tests := []struct {
		name string
		fn   func([]types.Candidate) ([]Scored, error)
	}{
		{"error", func([]types.Candidate) ([]Scored, error) { return nil, errors.New("boom") }},
		{"unknown url", func(c []types.Candidate) ([]Scored, error) {
			s, _ := reverse(c)
			s[0].URL = "https://elsewhere"
			return s, nil
		}},
		{"missing candidate", func(c []types.Candidate) ([]Scored, error) {
			s, _ := reverse(c)
			return s[1:], nil
		}},
		{"duplicate", func(c []types.Candidate) ([]Scored, error) {
			s, _ := reverse(c)
			s[1] = s[0]
			return s, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeScorer{fn: tt.fn}
			ref := types.Reference{Relevance: "habit formation"}
			in := []types.Candidate{
				{URL: "https://a", Title: "cooking"},
				{URL: "https://b", Title: "habit formation in adults"},
			}
			res := testRanker(s).Rank(context.Background(), ref, in)

			assert.Equal(t, 2, s.calls)
			require.Len(t, res.Fallbacks, 1)
			assert.ErrorIs(t, res.Fallbacks[0].Err, ErrRankingUnavailable)
			require.Len(t, res.Candidates, 2)
			assert.Equal(t, "https://b", res.Candidates[0].URL)
			assert.Equal(t, 1, res.Candidates[0].RankPosition)
		})
	}
}

func TestRankChunkFallbackIsPerChunk(t *testing.T) {
	in := append(numbered(0, 8), numbered(1, 8)...)
	s := &fakeScorer{fn: func(chunk []types.Candidate) ([]Scored, error) {
		if chunk[0].QueryIndex == 1 {
			return nil, errors.New("unavailable")
		}
		return reverse(chunk)
	}}
	res := testRanker(s).Rank(context.Background(), types.Reference{}, in)

	require.Len(t, res.Fallbacks, 1)
	assert.Equal(t, 1, res.Fallbacks[0].Chunk)
	assert.Equal(t, "https://q0.example/7", res.Candidates[0].URL)
	// Lexical with no keywords keeps input order.
	assert.Equal(t, "https://q1.example/0", res.Candidates[8].URL)
}

func TestRankTimeoutFallsBack(t *testing.T) {
	r := &Ranker{
		Scorer: &blockingScorer{},
		Policy: httputil.Policy{MaxAttempts: 1, Timeout: 10 * time.Millisecond, Backoff: time.Millisecond},
	}
	res := r.Rank(context.Background(), types.Reference{}, cands(0, "https://a"))
	require.Len(t, res.Fallbacks, 1)
	assert.ErrorIs(t, res.Fallbacks[0].Err, context.DeadlineExceeded)
	assert.Len(t, res.Candidates, 1)
}

type blockingScorer struct{}

func (blockingScorer) Score(ctx context.Context, _ types.Reference, _ []types.Candidate) ([]Scored, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRankWithoutScorerIsLexical(t *testing.T) {
	r := New(&fakeScorer{fn: reverse}, types.RankConfig{UseAI: false}, 3)
	assert.Nil(t, r.Scorer)
	res := r.Rank(context.Background(), types.Reference{}, cands(0, "https://a"))
	assert.Len(t, res.Fallbacks, 1)
}

// --- Lexical ---

func TestKeywords(t *testing.T) {
	got := Keywords("The role of habit formation, and the HABIT loop in 2020 studies.")
	assert.Equal(t, []string{"role", "habit", "formation", "loop", "2020", "studies"}, got)
}

func TestLexicalDeterministic(t *testing.T) {
	in := []types.Candidate{
		{URL: "https://a", Title: "Unrelated"},
		{URL: "https://b", Title: "Deliberate practice", Snippet: "expert performance"},
		{URL: "https://c", Title: "Expert performance"},
		{URL: "https://d", Title: "Also unrelated"},
	}
	rel := "Deliberate practice explains expert performance."
	first := Lexical(rel, in)
	second := Lexical(rel, in)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"https://b", "https://c", "https://a", "https://d"}, urls(first))
	assert.Equal(t, 4.0, first[0].Score)
	assert.Equal(t, 2.0, first[1].Score)
}

func urls(cs []types.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.URL
	}
	return out
}

// --- AIScorer ---

func TestAIScorerParsesArray(t *testing.T) {
	m := &fakeModel{reply: "Here you go:\n```json\n[{\"url\": \"https://a\", \"score\": 91}]\n```"}
	s := &AIScorer{Model: m}
	ref := types.Reference{ID: 3, Author: "Newport, C.", Year: "2016", Title: "Deep work", Relevance: "focus"}

	got, err := s.Score(context.Background(), ref, cands(0, "https://a"))
	require.NoError(t, err)
	assert.Equal(t, []Scored{{URL: "https://a", Score: 91}}, got)
	assert.Contains(t, m.prompt, "1. URL: https://a")
	assert.Contains(t, m.prompt, "Why it is cited: focus")
	assert.Contains(t, m.prompt, "Deep work")
}

func TestAIScorerRejectsNonJSON(t *testing.T) {
	s := &AIScorer{Model: &fakeModel{reply: "I cannot rank these."}}
	_, err := s.Score(context.Background(), types.Reference{}, cands(0, "https://a"))
	assert.Error(t, err)
}

// --- SelectURLs ---

func TestSelectURLs(t *testing.T) {
	tests := []struct {
		name           string
		ranked         []string
		primary, secnd string
	}{
		{"empty", nil, "", ""},
		{"single", []string{"https://pub.example/x"}, "https://pub.example/x", ""},
		{"same host skipped", []string{"https://pub.example/x", "https://pub.example/y", "https://other.example/z"},
			"https://pub.example/x", "https://other.example/z"},
		{"catalog preferred", []string{"https://doi.org/10.1/x", "https://blog.example/x", "https://www.worldcat.org/title/1"},
			"https://doi.org/10.1/x", "https://www.worldcat.org/title/1"},
		{"only same host", []string{"https://a.example/1", "https://www.a.example/2"}, "https://a.example/1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, s := SelectURLs(cands(0, tt.ranked...))
			assert.Equal(t, tt.primary, p)
			assert.Equal(t, tt.secnd, s)
		})
	}
}
