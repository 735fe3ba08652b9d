// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve executes search queries for a reference against one or
// more web and scholarly search backends and merges the hits into a single
// de-duplicated candidate list.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/reference-refine/internal/httputil"
	"github.com/pdiddy/reference-refine/pkg/types"
)

// Soft, per-query failures. Other queries for the same reference still run.
var (
	ErrRetrievalTimeout = errors.New("retrieval timed out")
	ErrRetrievalError   = errors.New("retrieval failed")
)

const (
	// DefaultTimeout bounds one search call.
	DefaultTimeout     = 18 * time.Second
	defaultMaxAttempts = 2
	defaultRate        = 2
	maxSnippet         = 400
)

// Backend is one search capability: query in, ordered hits out.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]types.Candidate, error)
}

// Retriever runs queries through a Backend with a per-call timeout, bounded
// retries, and a shared rate limit.
type Retriever struct {
	Backend Backend
	Policy  httputil.Policy
	Limiter *rate.Limiter
}

// New returns a Retriever configured from cfg.
func New(b Backend, cfg types.SearchConfig) *Retriever {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = defaultRate
	}
	return &Retriever{
		Backend: b,
		Policy:  httputil.Policy{MaxAttempts: attempts, Timeout: timeout},
		Limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Retrieve runs one query. A call that exceeds its timeout returns
// ErrRetrievalTimeout; any other failure returns ErrRetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]types.Candidate, error) {
	hits, err := httputil.Call(ctx, r.Policy, func(ctx context.Context) ([]types.Candidate, error) {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return r.Backend.Search(ctx, query)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrRetrievalTimeout, query, err)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrRetrievalError, query, err)
	}
	return hits, nil
}

// QueryFailure records a query that produced no hits because its call failed.
type QueryFailure struct {
	Index int
	Query string
	Err   error
}

// Result is the merged outcome of all queries for one reference.
type Result struct {
	Candidates []types.Candidate
	Failures   []QueryFailure
	Queries    int
	// Raw is the hit count before de-duplication.
	Raw int
}

// AllFailed reports whether every query failed.
func (r Result) AllFailed() bool {
	return r.Queries > 0 && len(r.Failures) == r.Queries
}

// RetrieveAll runs queries sequentially in submission order, concatenates
// their hits, and de-duplicates by normalized URL keeping the first
// occurrence. A failed query is recorded and skipped.
func (r *Retriever) RetrieveAll(ctx context.Context, queries []string) Result {
	res := Result{Queries: len(queries)}
	var all []types.Candidate
	for i, q := range queries {
		if ctx.Err() != nil {
			res.Failures = append(res.Failures, QueryFailure{Index: i, Query: q, Err: ctx.Err()})
			continue
		}
		hits, err := r.Retrieve(ctx, q)
		if err != nil {
			zap.L().Warn("query failed", zap.Int("query_index", i), zap.String("query", q), zap.Error(err))
			res.Failures = append(res.Failures, QueryFailure{Index: i, Query: q, Err: err})
			continue
		}
		for _, h := range hits {
			if strings.TrimSpace(h.URL) == "" {
				continue
			}
			h.QueryIndex = i
			all = append(all, h)
		}
	}
	res.Raw = len(all)
	res.Candidates = Deduplicate(all)
	return res
}

// Deduplicate keeps the first candidate for each normalized URL.
func Deduplicate(cands []types.Candidate) []types.Candidate {
	seen := make(map[string]bool, len(cands))
	out := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		k := NormalizeURL(c.URL)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// NormalizeURL returns the comparison key for a URL: scheme, host and path
// lower-cased, trailing slash removed, fragment and tracking parameters
// dropped. The remaining query is kept in order because many catalogue pages
// are addressed only by it.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(raw), "/")
	}
	key := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(strings.ToLower(u.EscapedPath()), "/")
	if q := stripTracking(u.RawQuery); q != "" {
		key += "?" + q
	}
	return key
}

// trackingParams are query keys added by ad and mail campaigns.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "dclid": true, "msclkid": true, "yclid": true,
	"igshid": true, "mc_cid": true, "mc_eid": true, "_ga": true, "_gl": true,
}

func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	var kept []string
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		k, _, _ := strings.Cut(part, "=")
		if name, err := url.QueryUnescape(k); err == nil {
			k = name
		}
		k = strings.ToLower(k)
		if strings.HasPrefix(k, "utm_") || trackingParams[k] {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

// Host returns the lower-cased host of raw without a leading "www.".
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndexByte(s[:n], ' ')
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "…"
}
