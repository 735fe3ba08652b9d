// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

const jinaDefaultSearchURL = "https://s.jina.ai"

// JinaBackend queries the Jina AI search API.
type JinaBackend struct {
	key     string
	baseURL string
	http    *http.Client
}

// JinaOption configures a JinaBackend.
type JinaOption func(*JinaBackend)

// WithJinaBaseURL overrides the search endpoint (for testing).
func WithJinaBaseURL(u string) JinaOption {
	return func(b *JinaBackend) { b.baseURL = u }
}

// NewJina creates a Jina search backend.
func NewJina(key string, opts ...JinaOption) *JinaBackend {
	b := &JinaBackend{
		key:     key,
		baseURL: jinaDefaultSearchURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the backend identifier.
func (b *JinaBackend) Name() string { return "jina" }

// Search runs one Jina search.
func (b *JinaBackend) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	reqURL := fmt.Sprintf("%s/%s", b.baseURL, url.PathEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create search request")
	}
	req.Header.Set("Authorization", "Bearer "+b.key)
	req.Header.Set("Accept", "application/json")
	// Titles and descriptions only; page bodies are not needed for ranking.
	req.Header.Set("X-Respond-With", "no-content")

	resp, err := httputil.DoWithRetry(ctx, b.http, req, 0)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}

	// Jina answers 422 when it has no results for the query.
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("jina: search unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr jinaResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}

	out := make([]types.Candidate, 0, len(sr.Data))
	for _, d := range sr.Data {
		if d.URL == "" {
			continue
		}
		snippet := d.Description
		if snippet == "" {
			snippet = d.Content
		}
		out = append(out, types.Candidate{
			Title:   d.Title,
			Snippet: truncate(snippet, maxSnippet),
			URL:     d.URL,
			Source:  b.Name(),
		})
	}
	return out, nil
}

type jinaResponse struct {
	Code int              `json:"code"`
	Data []jinaSearchItem `json:"data"`
}

type jinaSearchItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}
