// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/audit"
	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/internal/querygen"
	"github.com/pdiddy/reference-refine/internal/rank"
	"github.com/pdiddy/reference-refine/internal/retrieve"
	"github.com/pdiddy/reference-refine/internal/urlcheck"
	"github.com/pdiddy/reference-refine/internal/workflow"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// Per-reference failures. They never abort sibling references.
var (
	ErrNoQueries    = errors.New("no queries available")
	ErrNoCandidates = errors.New("no candidates retrieved")
)

// Processor runs the per-reference pipeline. It returns the updated reference
// or an error, in which case the reference must be left as it was.
type Processor interface {
	Process(ctx context.Context, ref types.Reference) (types.Reference, error)
}

// Pipeline generates queries, retrieves candidates, ranks them, and
// optionally selects URLs and finalizes. When Checker is set, selected URLs
// are fetched and only an accessible primary is finalized.
type Pipeline struct {
	Queries   *querygen.Generator
	Retriever *retrieve.Retriever
	Ranker    *rank.Ranker
	Checker   *urlcheck.Checker
	Audit     *audit.Log

	HeuristicFallback bool
	AutoSelect        bool
	AutoFinalize      bool
}

// NewPipeline wires a Pipeline from cfg. model may be nil, in which case
// queries come from the heuristic planner and ranking is lexical.
func NewPipeline(model llm.Generator, backend retrieve.Backend, cfg *types.Config, log *audit.Log) *Pipeline {
	var scorer rank.Scorer
	if model != nil {
		scorer = &rank.AIScorer{Model: model}
	}
	var checker *urlcheck.Checker
	if cfg.Batch.ValidateURLs {
		checker = urlcheck.New(cfg.Validate, cfg.Search.UserAgent, model)
	}
	return &Pipeline{
		Checker:           checker,
		Queries:           querygen.New(model, cfg.Queries, cfg.LLM),
		Retriever:         retrieve.New(backend, cfg.Search),
		Ranker:            rank.New(scorer, cfg.Rank, cfg.LLM.MaxAttempts),
		Audit:             log,
		HeuristicFallback: cfg.Queries.HeuristicFallback,
		AutoSelect:        cfg.Batch.AutoSelect,
		AutoFinalize:      cfg.Batch.AutoFinalize,
	}
}

// Process runs every step for a reference that has not been finalized.
func (p *Pipeline) Process(ctx context.Context, ref types.Reference) (types.Reference, error) {
	out := ref.Clone()
	if len(out.Queries) == 0 {
		var err error
		if out, err = p.GenerateQueries(ctx, out); err != nil {
			return ref, err
		}
	}
	out, err := p.Search(ctx, out)
	if err != nil {
		return ref, err
	}

	if p.AutoSelect {
		primary, secondary := rank.SelectURLs(out.Candidates)
		if out.PrimaryURL == "" {
			out.PrimaryURL = primary
		}
		if out.SecondaryURL == "" && secondary != out.PrimaryURL {
			out.SecondaryURL = secondary
		}
	}
	primaryOK := true
	if p.Checker != nil && (p.AutoSelect || p.AutoFinalize) {
		primaryOK = p.validate(ctx, &out)
	}
	if p.AutoFinalize && out.PrimaryURL != "" {
		if !primaryOK {
			out.AddNote("not finalized: primary URL is not accessible")
			return out, nil
		}
		if err := workflow.Finalize(&out); err != nil {
			return ref, err
		}
		p.Audit.Record(audit.Finalize, out.ID, zap.String("primary", out.PrimaryURL), zap.String("secondary", out.SecondaryURL))
	}
	return out, nil
}

// validate fetches the primary and secondary URLs, notes each one that does
// not give access to the work, and reports whether the primary does.
func (p *Pipeline) validate(ctx context.Context, ref *types.Reference) bool {
	citation := codec.Citation(*ref)
	primaryOK := false
	for _, u := range []struct{ role, url string }{
		{"primary", ref.PrimaryURL},
		{"secondary", ref.SecondaryURL},
	} {
		if u.url == "" {
			continue
		}
		res := p.Checker.Check(ctx, u.url, citation)
		p.Audit.Record(audit.URLCheck, ref.ID,
			zap.String("role", u.role),
			zap.String("url", u.url),
			zap.Int("score", res.Score),
			zap.String("barrier", string(res.Barrier)),
		)
		if u.role == "primary" {
			primaryOK = res.Accessible
		}
		if !res.Accessible {
			ref.AddNote("%s URL %s not accessible (score %d): %s", u.role, u.url, res.Score, res.Reason)
		}
	}
	return primaryOK
}

// GenerateQueries asks the model for new queries and merges them after the
// existing ones. When the model is unavailable and the reference has no
// queries, the heuristic planner is used if enabled.
func (p *Pipeline) GenerateQueries(ctx context.Context, ref types.Reference) (types.Reference, error) {
	out := ref.Clone()
	fresh, genErr := p.Queries.Generate(ctx, out)

	var qs []string
	switch {
	case genErr == nil:
		qs = p.Queries.Merge(out.Queries, fresh)
		p.Audit.Record(audit.QueriesLLM, out.ID, zap.Strings("queries", fresh))
	case len(out.Queries) > 0:
		qs = out.Queries
	case p.HeuristicFallback:
		qs = querygen.Heuristic(out, p.Queries.Cfg.Max)
		out.AddNote("queries planned heuristically: %v", genErr)
		p.Audit.Record(audit.QueriesFallback, out.ID, zap.Strings("queries", qs), zap.Error(genErr))
	}
	if len(qs) == 0 {
		if genErr != nil {
			return ref, fmt.Errorf("%w for [%d]: %w", ErrNoQueries, ref.ID, genErr)
		}
		return ref, fmt.Errorf("%w for [%d]", ErrNoQueries, ref.ID)
	}
	if err := workflow.ApplyQueries(&out, qs); err != nil {
		return ref, err
	}
	return out, nil
}

// Search retrieves candidates for the reference's queries and stores the
// ranking. A reference fails when every query failed or nothing came back.
func (p *Pipeline) Search(ctx context.Context, ref types.Reference) (types.Reference, error) {
	if len(ref.Queries) == 0 {
		return ref, fmt.Errorf("%w for [%d]", ErrNoQueries, ref.ID)
	}
	out := ref.Clone()

	res := p.Retriever.RetrieveAll(ctx, out.Queries)
	p.Audit.Record(audit.SearchRun, out.ID,
		zap.Int("queries", res.Queries),
		zap.Int("failed", len(res.Failures)),
		zap.Int("raw", res.Raw),
		zap.Int("unique", len(res.Candidates)),
	)
	if res.AllFailed() {
		return ref, fmt.Errorf("all %d queries failed for [%d]: %w", res.Queries, ref.ID, res.Failures[0].Err)
	}
	if len(res.Candidates) == 0 {
		return ref, fmt.Errorf("%w for [%d]", ErrNoCandidates, ref.ID)
	}
	for _, f := range res.Failures {
		out.AddNote("query %d failed: %v", f.Index, f.Err)
	}

	ranked := p.Ranker.Rank(ctx, out, res.Candidates)
	if len(ranked.Fallbacks) > 0 {
		if p.Ranker.Scorer != nil {
			out.AddNote("lexical ranking used for %d of %d chunks: %v", len(ranked.Fallbacks), ranked.Chunks, ranked.Fallbacks[0].Err)
		}
		p.Audit.Record(audit.RankFallback, out.ID, zap.Int("chunks", ranked.Chunks), zap.Int("fallbacks", len(ranked.Fallbacks)))
	} else {
		p.Audit.Record(audit.RankLLM, out.ID, zap.Int("chunks", ranked.Chunks))
	}
	if err := workflow.ApplyRanking(&out, ranked.Candidates); err != nil {
		return ref, err
	}
	return out, nil
}
