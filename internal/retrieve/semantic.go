// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,abstract,url,externalIds,venue,openAccessPdf"

// SemanticScholarBackend finds papers through the Semantic Scholar API.
type SemanticScholarBackend struct {
	Client    *http.Client
	APIKey    string
	UserAgent string
	Limit     int
}

// Name returns the backend identifier.
func (b *SemanticScholarBackend) Name() string { return "semantic_scholar" }

// Search queries Semantic Scholar and returns candidates. The DOI resolver
// link is preferred over the Semantic Scholar page.
func (b *SemanticScholarBackend) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	q := stripOperators(query)
	if q == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}
	limit := b.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	params := url.Values{
		"query":  {q},
		"limit":  {fmt.Sprintf("%d", limit)},
		"fields": {semanticFields},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}
	if b.APIKey != "" {
		req.Header.Set("x-api-key", b.APIKey)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar API returned HTTP %d", resp.StatusCode)
	}

	var sr semanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar response: %w", err)
	}

	var out []types.Candidate
	for _, p := range sr.Data {
		link := p.URL
		switch {
		case p.ExternalIDs.DOI != "":
			link = "https://doi.org/" + p.ExternalIDs.DOI
		case p.OpenAccessPDF.URL != "":
			link = p.OpenAccessPDF.URL
		}
		if link == "" {
			continue
		}
		snippet := p.Abstract
		if snippet == "" {
			snippet = p.Venue
		}
		out = append(out, types.Candidate{
			Title:   p.Title,
			Snippet: truncate(snippet, maxSnippet),
			URL:     link,
			Source:  b.Name(),
		})
	}
	return out, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total int             `json:"total"`
	Data  []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	Abstract      string              `json:"abstract"`
	URL           string              `json:"url"`
	Venue         string              `json:"venue"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF semanticPDF         `json:"openAccessPdf"`
}

type semanticExternalIDs struct {
	DOI string `json:"DOI"`
}

type semanticPDF struct {
	URL string `json:"url"`
}
