// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// openAlexSearchBase is the OpenAlex Works search endpoint. Declared as a
// var so tests can substitute an httptest server.
var openAlexSearchBase = "https://api.openalex.org/works"

// OpenAlexBackend finds scholarly works through OpenAlex. Each work becomes
// a candidate pointing at its DOI resolver link, or its landing page when it
// has no DOI.
type OpenAlexBackend struct {
	Client *http.Client
	// Email is sent as mailto parameter for polite pool access.
	Email     string
	UserAgent string
	PerPage   int
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Search queries OpenAlex and returns candidates in relevance order.
func (b *OpenAlexBackend) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	// OpenAlex full-text search ignores site: operators; drop them.
	text := stripOperators(query)
	if text == "" {
		return nil, fmt.Errorf("empty OpenAlex query")
	}
	perPage := b.PerPage
	if perPage <= 0 || perPage > 50 {
		perPage = 10
	}

	params := url.Values{
		"search":   {text},
		"per_page": {fmt.Sprintf("%d", perPage)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, b.client(), req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	var out []types.Candidate
	for _, work := range oar.Results {
		link := work.DOI
		if link == "" {
			link = work.PrimaryLocation.LandingPageURL
		}
		if link == "" {
			link = work.OpenAccess.OAURL
		}
		if link == "" {
			continue
		}
		snippet := reconstructAbstract(work.AbstractInvertedIndex)
		if snippet == "" {
			snippet = work.PrimaryLocation.Source.DisplayName
		}
		out = append(out, types.Candidate{
			Title:   work.Title,
			Snippet: truncate(snippet, maxSnippet),
			URL:     link,
			Source:  b.Name(),
		})
	}
	return out, nil
}

func (b *OpenAlexBackend) client() *http.Client {
	if b.Client != nil {
		return b.Client
	}
	return http.DefaultClient
}

// stripOperators removes search-engine operators such as site:doi.org that
// scholarly APIs would treat as literal words.
func stripOperators(q string) string {
	var keep []string
	for _, f := range strings.Fields(q) {
		if i := strings.IndexByte(f, ':'); i > 0 && !strings.HasPrefix(f, `"`) {
			switch strings.ToLower(f[:i]) {
			case "site", "filetype", "inurl", "intitle":
				continue
			}
		}
		keep = append(keep, f)
	}
	return strings.Join(keep, " ")
}

// reconstructAbstract converts OpenAlex's abstract_inverted_index back to
// plain text. The inverted index maps each word to a list of positions
// where that word appears.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })

	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string             `json:"id"`
	Title                 string             `json:"title"`
	DOI                   string             `json:"doi"`
	AbstractInvertedIndex map[string][]int   `json:"abstract_inverted_index"`
	OpenAccess            openAlexOpenAccess `json:"open_access"`
	PrimaryLocation       openAlexLocation   `json:"primary_location"`
}

type openAlexOpenAccess struct {
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	LandingPageURL string         `json:"landing_page_url"`
	Source         openAlexSource `json:"source"`
}

type openAlexSource struct {
	DisplayName string `json:"display_name"`
}
