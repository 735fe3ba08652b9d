// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/reference-refine/internal/httputil"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// --- CSE ---

func TestCSESearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key1", q.Get("key"))
		assert.Equal(t, "cx1", q.Get("cx"))
		assert.Equal(t, `"Deep Work" Smith`, q.Get("q"))
		assert.Equal(t, "10", q.Get("num"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items": [
			{"title": "Deep Work", "link": "https://publisher.example/deep-work", "snippet": "Rules for   focused success"},
			{"title": "no link"}
		]}`))
	}))
	defer ts.Close()

	b := NewCSE("key1", "cx1", 50, WithCSEBaseURL(ts.URL), WithCSEHTTPClient(ts.Client()))
	got, err := b.Search(context.Background(), `"Deep Work" Smith`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://publisher.example/deep-work", got[0].URL)
	assert.Equal(t, "Rules for focused success", got[0].Snippet)
	assert.Equal(t, "cse", got[0].Source)
}

func TestCSESearchErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"message": "quota"}}`))
	}))
	defer ts.Close()

	_, err := NewCSE("k", "c", 10, WithCSEBaseURL(ts.URL)).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "unexpected status 403")
}

// --- Jina ---

func TestJinaSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jk", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.URL.Path, "/"))
		w.Write([]byte(`{"code": 200, "data": [
			{"title": "A", "url": "https://a.example", "description": "desc A"},
			{"title": "B", "url": "https://b.example", "content": "body B"}
		]}`))
	}))
	defer ts.Close()

	got, err := NewJina("jk", WithJinaBaseURL(ts.URL)).Search(context.Background(), "deep work")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "desc A", got[0].Snippet)
	assert.Equal(t, "body B", got[1].Snippet)
}

func TestJinaNoResults(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	got, err := NewJina("jk", WithJinaBaseURL(ts.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// --- OpenAlex ---

func TestOpenAlexSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `Smith "Deep Work"`, r.URL.Query().Get("search"))
		assert.Equal(t, "me@example.com", r.URL.Query().Get("mailto"))
		w.Write([]byte(`{"results": [
			{"id": "https://openalex.org/W1", "title": "Deep Work", "doi": "https://doi.org/10.1000/dw",
			 "abstract_inverted_index": {"Focus": [0], "matters": [1]}},
			{"id": "https://openalex.org/W2", "title": "Landing only",
			 "primary_location": {"landing_page_url": "https://journal.example/w2", "source": {"display_name": "Journal X"}}},
			{"id": "https://openalex.org/W3", "title": "Nothing to link"}
		]}`))
	}))
	defer ts.Close()

	old := openAlexSearchBase
	openAlexSearchBase = ts.URL
	defer func() { openAlexSearchBase = old }()

	b := &OpenAlexBackend{Client: ts.Client(), Email: "me@example.com"}
	got, err := b.Search(context.Background(), `Smith "Deep Work" site:doi.org`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://doi.org/10.1000/dw", got[0].URL)
	assert.Equal(t, "Focus matters", got[0].Snippet)
	assert.Equal(t, "https://journal.example/w2", got[1].URL)
	assert.Equal(t, "Journal X", got[1].Snippet)
}

func TestReconstructAbstract(t *testing.T) {
	idx := map[string][]int{"world": {1}, "hello": {0, 2}}
	assert.Equal(t, "hello world hello", reconstructAbstract(idx))
	assert.Empty(t, reconstructAbstract(nil))
}

// --- Semantic Scholar ---

func TestSemanticScholarSearch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s2key", r.Header.Get("x-api-key"))
		w.Write([]byte(`{"total": 2, "data": [
			{"paperId": "p1", "title": "With DOI", "url": "https://www.semanticscholar.org/paper/p1", "externalIds": {"DOI": "10.1/abc"}, "abstract": "about"},
			{"paperId": "p2", "title": "No DOI", "url": "https://www.semanticscholar.org/paper/p2", "venue": "Venue Y"}
		]}`))
	}))
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	b := &SemanticScholarBackend{Client: ts.Client(), APIKey: "s2key"}
	got, err := b.Search(context.Background(), "deep work")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://doi.org/10.1/abc", got[0].URL)
	assert.Equal(t, "https://www.semanticscholar.org/paper/p2", got[1].URL)
	assert.Equal(t, "Venue Y", got[1].Snippet)
}

func TestSemanticScholarHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	old := semanticAPIBase
	semanticAPIBase = ts.URL
	defer func() { semanticAPIBase = old }()

	_, err := (&SemanticScholarBackend{Client: ts.Client()}).Search(context.Background(), "q")
	assert.ErrorContains(t, err, "HTTP 400")
}
