// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

const cseDefaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// CSEBackend queries the Google Custom Search JSON API.
type CSEBackend struct {
	key     string
	cx      string
	num     int
	baseURL string
	http    *http.Client
}

// CSEOption configures a CSEBackend.
type CSEOption func(*CSEBackend)

// WithCSEBaseURL overrides the API endpoint (for testing).
func WithCSEBaseURL(u string) CSEOption {
	return func(b *CSEBackend) { b.baseURL = u }
}

// WithCSEHTTPClient overrides the default http.Client.
func WithCSEHTTPClient(hc *http.Client) CSEOption {
	return func(b *CSEBackend) { b.http = hc }
}

// NewCSE creates a Custom Search backend returning up to num hits per query
// (the API caps a page at 10).
func NewCSE(key, cx string, num int, opts ...CSEOption) *CSEBackend {
	if num <= 0 || num > 10 {
		num = 10
	}
	b := &CSEBackend{
		key:     key,
		cx:      cx,
		num:     num,
		baseURL: cseDefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the backend identifier.
func (b *CSEBackend) Name() string { return "cse" }

// Search runs one Custom Search query.
func (b *CSEBackend) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	params := url.Values{
		"key": {b.key},
		"cx":  {b.cx},
		"q":   {query},
		"num": {strconv.Itoa(b.num)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "cse: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, b.http, req, 0)
	if err != nil {
		return nil, eris.Wrap(err, "cse: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "cse: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("cse: unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var sr cseResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "cse: unmarshal response")
	}

	out := make([]types.Candidate, 0, len(sr.Items))
	for _, it := range sr.Items {
		if it.Link == "" {
			continue
		}
		out = append(out, types.Candidate{
			Title:   it.Title,
			Snippet: truncate(it.Snippet, maxSnippet),
			URL:     it.Link,
			Source:  b.Name(),
		})
	}
	return out, nil
}

type cseResponse struct {
	Items []cseItem `json:"items"`
}

type cseItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}
