// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm adapts hosted text-generation APIs to a single Generator
// capability used for query generation and candidate ranking.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/reference-refine/pkg/types"
)

// Generator produces a text completion for a single prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// New builds the Generator selected by cfg. The returned close function
// releases provider resources and is always non-nil.
func New(ctx context.Context, cfg types.LLMConfig) (Generator, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAnthropic:
		if cfg.AnthropicKey == "" {
			return nil, noop, fmt.Errorf("anthropic provider selected but no API key configured")
		}
		return NewAnthropic(cfg.AnthropicKey, cfg.Model, cfg.MaxTokens, cfg.Temperature), noop, nil
	case ProviderGemini:
		if cfg.GeminiKey == "" {
			return nil, noop, fmt.Errorf("gemini provider selected but no API key configured")
		}
		g, err := NewGemini(ctx, cfg.GeminiKey, cfg.Model, cfg.Temperature)
		if err != nil {
			return nil, noop, err
		}
		return g, g.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// ExtractJSON returns the outermost JSON object or array embedded in text,
// tolerating markdown fences and prose around it. It returns "" when text
// holds no bracketed span.
func ExtractJSON(text string) string {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return ""
	}
	return text[start : end+1]
}
