// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package urlcheck fetches a candidate URL and judges whether it gives real
// access to the cited work: soft 404s, paywalls, login walls and previews are
// detected from the page text, and the text is matched against the citation.
package urlcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/reference-refine/internal/llm"
	"github.com/pdiddy/reference-refine/pkg/types"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 100_000
	maxRedirects    = 5
)

// Barrier is the access problem detected on a page.
type Barrier string

const (
	BarrierNone    Barrier = ""
	BarrierSoft404 Barrier = "soft_404"
	BarrierPaywall Barrier = "paywall"
	BarrierLogin   Barrier = "login"
	BarrierPreview Barrier = "preview"
)

// Result is the verdict for one URL. Score runs from 0 (dead) to 100
// (accessible and clearly the cited work).
type Result struct {
	URL            string  `json:"url"`
	Status         int     `json:"status"`
	Valid          bool    `json:"valid"`
	Accessible     bool    `json:"accessible"`
	Score          int     `json:"score"`
	Reason         string  `json:"reason"`
	Barrier        Barrier `json:"barrier,omitempty"`
	Confidence     float64 `json:"confidence"`
	ContentMatches bool    `json:"content_matches"`
}

// Checker validates URLs. Model is optional; without it content matching
// uses word overlap only.
type Checker struct {
	Client    *http.Client
	MaxBytes  int64
	Timeout   time.Duration
	UserAgent string
	Model     llm.Generator
}

// New returns a Checker configured from cfg.
func New(cfg types.ValidateConfig, userAgent string, model llm.Generator) *Checker {
	c := &Checker{
		MaxBytes:  cfg.MaxBytes,
		Timeout:   cfg.Timeout,
		UserAgent: userAgent,
		Model:     model,
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.Client = &http.Client{
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
	return c
}

// Check fetches url and scores it against citation.
func (c *Checker) Check(ctx context.Context, url, citation string) Result {
	res := Result{URL: url}
	content, status, err := c.fetch(ctx, url)
	res.Status = status
	if err != nil {
		res.Reason = "connection failed: " + err.Error()
		return res
	}
	if status >= 400 {
		res.Reason = fmt.Sprintf("HTTP %d error", status)
		if status == http.StatusNotFound {
			res.Barrier = BarrierSoft404
		}
		return res
	}

	barrier, reason := Classify(content)
	res.Barrier = barrier
	res.Reason = reason
	switch barrier {
	case BarrierSoft404:
		res.Score = 0
	case BarrierPreview:
		res.Score = 40
	case BarrierPaywall:
		res.Score = 50
	case BarrierLogin:
		res.Score = 60
	default:
		res.Score = 90
		res.ContentMatches, res.Confidence = c.match(ctx, content, citation)
		if res.ContentMatches && res.Confidence > 0.7 {
			res.Score = 100
			res.Reason = fmt.Sprintf("accessible content with high confidence match (%.0f%%)", res.Confidence*100)
		}
	}
	res.Valid = res.Score > 0
	res.Accessible = res.Score >= 90
	return res
}

func (c *Checker) fetch(ctx context.Context, url string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBytes))
	if err != nil && len(body) == 0 {
		return "", resp.StatusCode, fmt.Errorf("reading body: %w", err)
	}
	return strings.ToValidUTF8(string(body), ""), resp.StatusCode, nil
}

// Classify reports the first access barrier found in content. Soft 404s are
// checked first, then paywalls, login walls and previews.
func Classify(content string) (Barrier, string) {
	if name, ok := firstMatch(soft404Patterns, content); ok {
		return BarrierSoft404, "soft 404 detected: " + name
	}
	if name, ok := firstMatch(paywallPatterns, content); ok {
		return BarrierPaywall, "paywall detected: " + name
	}
	if name, ok := firstMatch(loginPatterns, content); ok {
		return BarrierLogin, "login required: " + name
	}
	if name, ok := firstMatch(previewPatterns, content); ok {
		return BarrierPreview, "preview only: " + name
	}
	return BarrierNone, "accessible content"
}

var matchStopwords = map[string]bool{
	"the": true, "and": true, "of": true, "in": true, "a": true, "an": true,
	"to": true, "for": true, "on": true, "with": true, "by": true,
}

// MatchBasic counts how many of the citation's first ten significant words
// occur in content. Three or more is a match; five or more is full confidence.
func MatchBasic(content, citation string) (bool, float64) {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(citation)) {
		if len(w) > 3 && !matchStopwords[w] {
			words = append(words, w)
		}
	}
	if len(words) > 10 {
		words = words[:10]
	}
	lower := strings.ToLower(content)
	n := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n >= 3, min(1.0, float64(n)/5)
}

func (c *Checker) match(ctx context.Context, content, citation string) (bool, float64) {
	if c.Model == nil {
		return MatchBasic(content, citation)
	}
	ok, conf, err := c.matchAI(ctx, content, citation)
	if err != nil {
		zap.L().Debug("content match fell back to word overlap", zap.Error(err))
		return MatchBasic(content, citation)
	}
	return ok, conf
}

var matchRe = regexp.MustCompile(`MATCH:\s*(\d+)`)

func (c *Checker) matchAI(ctx context.Context, content, citation string) (bool, float64, error) {
	if len(content) > 2000 {
		content = strings.ToValidUTF8(content[:2000], "")
	}
	prompt := "You are verifying whether a web page is the cited work.\n\n" +
		"Citation: " + citation + "\n\n" +
		"Page content (first 2000 characters):\n" + content + "\n\n" +
		"Consider whether the author name appears, whether the title or its key words appear, " +
		"and whether the year matches within one year.\n\n" +
		"Respond with only:\nMATCH: <0-100 confidence>\nREASON: <one sentence>"

	text, err := c.Model.Generate(ctx, prompt)
	if err != nil {
		return false, 0, err
	}
	m := matchRe.FindStringSubmatch(text)
	if m == nil {
		return false, 0, fmt.Errorf("no MATCH line in response")
	}
	n, _ := strconv.Atoi(m[1])
	conf := min(1.0, float64(n)/100)
	return conf >= 0.7, conf, nil
}
