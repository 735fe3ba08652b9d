// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/reference-refine/pkg/types"
)

// MultiBackend fans one query out to several backends concurrently and
// concatenates their hits in backend order. It fails only when every
// backend fails.
type MultiBackend struct {
	Backends []Backend
}

// Name lists the member backends.
func (m *MultiBackend) Name() string {
	names := make([]string, len(m.Backends))
	for i, b := range m.Backends {
		names[i] = b.Name()
	}
	return strings.Join(names, "+")
}

// Search runs query on every backend.
func (m *MultiBackend) Search(ctx context.Context, query string) ([]types.Candidate, error) {
	results := make([][]types.Candidate, len(m.Backends))
	errs := make([]error, len(m.Backends))

	var g errgroup.Group
	for i, b := range m.Backends {
		g.Go(func() error {
			results[i], errs[i] = b.Search(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	var out []types.Candidate
	failed := 0
	for i, b := range m.Backends {
		if errs[i] != nil {
			failed++
			zap.L().Debug("backend failed", zap.String("backend", b.Name()), zap.Error(errs[i]))
			errs[i] = fmt.Errorf("%s: %w", b.Name(), errs[i])
			continue
		}
		out = append(out, results[i]...)
	}
	if failed == len(m.Backends) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// FromConfig builds the backend named by cfg.Backends. Several names yield a
// MultiBackend.
func FromConfig(cfg types.SearchConfig) (Backend, error) {
	names := cfg.Backends
	if len(names) == 0 {
		names = []string{"cse"}
	}
	client := &http.Client{Timeout: 30 * time.Second}

	var backends []Backend
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cse", "google":
			if cfg.CSEKey == "" || cfg.CSEID == "" {
				return nil, fmt.Errorf("search backend cse needs google_cse_api_key and google_cse_id")
			}
			backends = append(backends, NewCSE(cfg.CSEKey, cfg.CSEID, cfg.ResultsPerQuery, WithCSEHTTPClient(client)))
		case "jina":
			if cfg.JinaKey == "" {
				return nil, fmt.Errorf("search backend jina needs jina_api_key")
			}
			backends = append(backends, NewJina(cfg.JinaKey))
		case "openalex":
			backends = append(backends, &OpenAlexBackend{Client: client, Email: cfg.OpenAlexEmail, UserAgent: cfg.UserAgent, PerPage: cfg.ResultsPerQuery})
		case "semantic_scholar", "semantic":
			backends = append(backends, &SemanticScholarBackend{Client: client, APIKey: cfg.SemanticScholarKey, UserAgent: cfg.UserAgent, Limit: cfg.ResultsPerQuery})
		default:
			return nil, fmt.Errorf("unknown search backend %q", name)
		}
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return &MultiBackend{Backends: backends}, nil
}
