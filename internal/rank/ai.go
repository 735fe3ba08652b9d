// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/reference-refine/internal/codec"
	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/pkg/types"
)

var scorePrompt = template.Must(template.New("score").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(`You are ranking web search results for one bibliographic reference.

Reference: {{.Header}}
{{- if .Relevance}}
Why it is cited: {{.Relevance}}
{{- end}}

Candidates:
{{- range $i, $c := .Candidates}}
{{inc $i}}. URL: {{$c.URL}}
   Title: {{$c.Title}}
{{- if $c.Snippet}}
   Snippet: {{$c.Snippet}}
{{- end}}
{{- end}}

Score every candidate from 0 to 100 for how well it points to this exact work.
Prefer DOI resolvers, publisher pages, and library or archive catalog records.
Prefer freely readable full text over previews. Penalize retail listings,
reviews, summaries, and pages about a different work or edition.

Reply with only a JSON array containing each candidate URL exactly once:
[{"url": "...", "score": 0}]
`))

// AIScorer scores candidates with a text-generation model.
type AIScorer struct {
	Model llm.Generator
}

// Score implements Scorer.
func (s *AIScorer) Score(ctx context.Context, ref types.Reference, chunk []types.Candidate) ([]Scored, error) {
	prompt, err := renderScorePrompt(ref, chunk)
	if err != nil {
		return nil, err
	}
	text, err := s.Model.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var scored []Scored
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &scored); err != nil {
		return nil, eris.Wrap(err, "decoding scorer response")
	}
	return scored, nil
}

func renderScorePrompt(ref types.Reference, chunk []types.Candidate) (string, error) {
	var buf bytes.Buffer
	err := scorePrompt.Execute(&buf, struct {
		Header     string
		Relevance  string
		Candidates []types.Candidate
	}{codec.Header(ref), ref.Relevance, chunk})
	if err != nil {
		return "", fmt.Errorf("rendering score prompt: %w", err)
	}
	return buf.String(), nil
}
