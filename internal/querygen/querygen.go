// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package querygen plans web search queries for a reference, using a
// text-generation model with a deterministic heuristic fallback.
package querygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// ErrGenerationUnavailable signals that no new queries could be produced.
// The reference's existing queries are returned alongside it.
var ErrGenerationUnavailable = errors.New("query generation unavailable")

const (
	defaultMax       = 6
	defaultMaxStored = 12
	maxRelevanceLen  = 600 // runes
)

var promptTmpl = template.Must(template.New("queries").Parse(`You are a search-query planner for academic and monograph references.
Return strictly JSON of the form {"queries": ["..."]} with at most {{.Max}} high-yield web search queries that would locate an authoritative copy or publisher page of the work below.
Prefer the exact quoted title, add site:doi.org and site:worldcat.org variants, publisher or press sites, and "review" variants. No commentary.
{{- if .Existing}}
Queries already tried (do not repeat them):
{{- range .Existing}}
- {{.}}
{{- end}}
{{- end}}

Author: {{.Author}}
Title: {{.Title}}
Year: {{.Year}}
Container: {{.Container}}
Relevance: {{.Relevance}}
`))

// Generator produces queries for references.
type Generator struct {
	Model  llm.Generator
	Policy httputil.Policy
	Cfg    types.QueryConfig
}

// New returns a Generator with per-call timeout and attempts from llmCfg.
func New(model llm.Generator, cfg types.QueryConfig, llmCfg types.LLMConfig) *Generator {
	return &Generator{
		Model: model,
		Cfg:   cfg,
		Policy: httputil.Policy{
			MaxAttempts: llmCfg.MaxAttempts,
			Timeout:     llmCfg.Timeout,
		},
	}
}

func (g *Generator) max() int {
	if g.Cfg.Max > 0 {
		return g.Cfg.Max
	}
	return defaultMax
}

// Generate returns up to K new queries for ref. On provider error, timeout,
// or unusable output it returns ref.Queries unchanged together with
// ErrGenerationUnavailable.
func (g *Generator) Generate(ctx context.Context, ref types.Reference) ([]string, error) {
	if g.Model == nil {
		return ref.Queries, fmt.Errorf("%w: no model configured", ErrGenerationUnavailable)
	}
	prompt, err := renderPrompt(ref, g.max())
	if err != nil {
		return ref.Queries, fmt.Errorf("%w: rendering prompt: %v", ErrGenerationUnavailable, err)
	}

	start := time.Now()
	text, err := httputil.Call(ctx, g.Policy, func(ctx context.Context) (string, error) {
		return g.Model.Generate(ctx, prompt)
	})
	if err != nil {
		zap.L().Warn("query generation failed", zap.Int("ref", ref.ID), zap.Error(err))
		return ref.Queries, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}

	qs := parseQueries(text)
	qs = dedupe(qs, nil)
	if len(qs) > g.max() {
		qs = qs[:g.max()]
	}
	if len(qs) == 0 {
		return ref.Queries, fmt.Errorf("%w: model returned no usable queries", ErrGenerationUnavailable)
	}
	zap.L().Debug("queries generated",
		zap.Int("ref", ref.ID),
		zap.Int("count", len(qs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return qs, nil
}

// Merge appends fresh queries after existing ones, dropping duplicates and
// capping the total at the configured maximum.
func (g *Generator) Merge(existing, fresh []string) []string {
	limit := g.Cfg.MaxStored
	if limit <= 0 {
		limit = defaultMaxStored
	}
	out := dedupe(existing, nil)
	out = dedupe(fresh, out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Heuristic plans queries from the header fields alone: quoted title plus
// author, pdf and review variants, DOI and WorldCat site searches, a
// publisher variant, the year, and the first words of the relevance text.
func Heuristic(ref types.Reference, limit int) []string {
	if limit <= 0 {
		limit = 8
	}
	var parts []string
	if ref.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", ref.Title))
	}
	author := surname(ref.Author)
	if author != "" {
		parts = append(parts, author)
	}
	core := strings.Join(parts, " ")

	var qs []string
	if core != "" {
		qs = append(qs, core, core+" pdf", core+" review")
	}
	if author != "" && ref.Title != "" {
		quoted := fmt.Sprintf("%s %q", author, ref.Title)
		qs = append(qs, quoted+" site:doi.org", quoted+" site:worldcat.org", quoted+" publisher")
	}
	if ref.Year != "" && core != "" {
		qs = append(qs, core+" "+ref.Year)
	}
	if ref.Relevance != "" && core != "" {
		words := strings.Fields(ref.Relevance)
		if len(words) > 4 {
			words = words[:4]
		}
		qs = append(qs, core+" "+strings.Join(words, " "))
	}
	qs = dedupe(qs, nil)
	if len(qs) > limit {
		qs = qs[:limit]
	}
	return qs
}

// surname returns the family name from "Smith, J." style author strings.
func surname(author string) string {
	author = strings.TrimSpace(author)
	if i := strings.IndexByte(author, ','); i > 0 {
		return strings.TrimSpace(author[:i])
	}
	return strings.TrimSuffix(author, ".")
}

func renderPrompt(ref types.Reference, max int) (string, error) {
	rel := ref.Relevance
	if utf8.RuneCountInString(rel) > maxRelevanceLen {
		rel = string([]rune(rel)[:maxRelevanceLen])
	}
	var buf bytes.Buffer
	err := promptTmpl.Execute(&buf, struct {
		types.Reference
		Max       int
		Existing  []string
		Relevance string
	}{Reference: ref, Max: max, Existing: ref.Queries, Relevance: rel})
	return buf.String(), err
}

var listPrefixRe = regexp.MustCompile(`^[-*\d.)\s]+`)

// parseQueries accepts {"queries": [...]}, a bare JSON array, or a plain
// list with one query per line.
func parseQueries(text string) []string {
	if js := llm.ExtractJSON(text); js != "" {
		var obj struct {
			Queries []string `json:"queries"`
		}
		if err := json.Unmarshal([]byte(js), &obj); err == nil && len(obj.Queries) > 0 {
			return obj.Queries
		}
		var arr []string
		if err := json.Unmarshal([]byte(js), &arr); err == nil && len(arr) > 0 {
			return arr
		}
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listPrefixRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// dedupe appends the trimmed, non-empty members of qs to into, skipping any
// already present (case-insensitive).
func dedupe(qs, into []string) []string {
	seen := make(map[string]bool, len(into)+len(qs))
	for _, q := range into {
		seen[strings.ToLower(q)] = true
	}
	for _, q := range qs {
		q = strings.Join(strings.Fields(q), " ")
		k := strings.ToLower(q)
		if q == "" || seen[k] {
			continue
		}
		seen[k] = true
		into = append(into, q)
	}
	return into
}
