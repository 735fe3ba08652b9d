// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank orders retrieved candidates against a reference's relevance
// narrative. An external scorer ranks bounded chunks; any chunk it cannot
// rank falls back to deterministic keyword-overlap scoring.
package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// ErrRankingUnavailable marks a chunk that was ranked by the fallback.
var ErrRankingUnavailable = errors.New("ranking unavailable")

const (
	// MaxChunk is the most candidates sent in one scoring call.
	MaxChunk = 10

	// DefaultTimeout bounds one scoring call.
	DefaultTimeout = 18 * time.Second
)

// Scored is one entry of a scorer's answer.
type Scored struct {
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

// Scorer assigns scores to at most MaxChunk candidates.
type Scorer interface {
	Score(ctx context.Context, ref types.Reference, chunk []types.Candidate) ([]Scored, error)
}

// Ranker ranks candidates in chunks.
type Ranker struct {
	// Scorer may be nil, in which case every chunk is ranked lexically.
	Scorer    Scorer
	Policy    httputil.Policy
	ChunkSize int
}

// New returns a Ranker using scorer under cfg's chunk size and timeout.
func New(scorer Scorer, cfg types.RankConfig, attempts int) *Ranker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if !cfg.UseAI {
		scorer = nil
	}
	return &Ranker{
		Scorer:    scorer,
		ChunkSize: cfg.ChunkSize,
		Policy:    httputil.Policy{MaxAttempts: attempts, Timeout: timeout},
	}
}

// Fallback records a chunk that used lexical scoring and why.
type Fallback struct {
	Chunk int
	Err   error
}

// Result is the outcome of ranking one reference's candidates.
type Result struct {
	Candidates []types.Candidate
	Chunks     int
	Fallbacks  []Fallback
}

// Rank scores and orders cands. Chunks are ranked independently and
// concatenated in chunk order; RankPosition runs 1..n without gaps.
func (r *Ranker) Rank(ctx context.Context, ref types.Reference, cands []types.Candidate) Result {
	chunks := Chunk(cands, r.ChunkSize)
	res := Result{Chunks: len(chunks)}

	for i, ch := range chunks {
		ranked, err := r.rankChunk(ctx, ref, ch)
		if err != nil {
			zap.L().Info("ranking fell back to keyword overlap",
				zap.Int("ref", ref.ID), zap.Int("chunk", i), zap.Error(err))
			res.Fallbacks = append(res.Fallbacks, Fallback{Chunk: i, Err: fmt.Errorf("%w: %w", ErrRankingUnavailable, err)})
			ranked = Lexical(ref.Relevance, ch)
		}
		res.Candidates = append(res.Candidates, ranked...)
	}
	for i := range res.Candidates {
		res.Candidates[i].RankPosition = i + 1
	}
	return res
}

func (r *Ranker) rankChunk(ctx context.Context, ref types.Reference, chunk []types.Candidate) ([]types.Candidate, error) {
	if r.Scorer == nil {
		return nil, errors.New("no scorer configured")
	}
	scored, err := httputil.Call(ctx, r.Policy, func(ctx context.Context) ([]Scored, error) {
		s, err := r.Scorer.Score(ctx, ref, chunk)
		if err != nil {
			return nil, err
		}
		if err := validate(chunk, s); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return apply(chunk, scored), nil
}

// validate requires exactly one score for every candidate in chunk and no
// unknown URLs.
func validate(chunk []types.Candidate, scored []Scored) error {
	want := make(map[string]bool, len(chunk))
	for _, c := range chunk {
		want[c.URL] = true
	}
	got := make(map[string]bool, len(scored))
	for _, s := range scored {
		if !want[s.URL] {
			return fmt.Errorf("scorer returned unknown url %q", s.URL)
		}
		if got[s.URL] {
			return fmt.Errorf("scorer returned %q twice", s.URL)
		}
		got[s.URL] = true
	}
	if len(got) != len(want) {
		return fmt.Errorf("scorer returned %d of %d candidates", len(got), len(want))
	}
	return nil
}

func apply(chunk []types.Candidate, scored []Scored) []types.Candidate {
	byURL := make(map[string]float64, len(scored))
	for _, s := range scored {
		byURL[s.URL] = s.Score
	}
	out := make([]types.Candidate, len(chunk))
	for i, c := range chunk {
		c.Score = byURL[c.URL]
		out[i] = c
	}
	sortByScore(out)
	return out
}

// sortByScore orders descending by score; equal scores keep their input order.
func sortByScore(cs []types.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
}

// Chunk splits cands into consecutive chunks of at most size (capped at
// MaxChunk). Candidates from the same query stay in one chunk unless that
// query alone produced more than size.
func Chunk(cands []types.Candidate, size int) [][]types.Candidate {
	if size <= 0 || size > MaxChunk {
		size = MaxChunk
	}
	var chunks [][]types.Candidate
	var cur []types.Candidate
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, cur)
			cur = nil
		}
	}

	for _, g := range groups(cands) {
		switch {
		case len(g) > size:
			flush()
			for len(g) > size {
				chunks = append(chunks, g[:size:size])
				g = g[size:]
			}
			cur = append(cur, g...)
		case len(cur)+len(g) > size:
			flush()
			cur = append(cur, g...)
		default:
			cur = append(cur, g...)
		}
	}
	flush()
	return chunks
}

// groups splits cands into runs sharing a QueryIndex.
func groups(cands []types.Candidate) [][]types.Candidate {
	var out [][]types.Candidate
	start := 0
	for i := 1; i <= len(cands); i++ {
		if i == len(cands) || cands[i].QueryIndex != cands[start].QueryIndex {
			out = append(out, cands[start:i:i])
			start = i
		}
	}
	return out
}
