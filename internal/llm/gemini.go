// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiGenerator calls Google Gemini through generative-ai-go.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini opens a Gemini client. Close releases it.
func NewGemini(ctx context.Context, apiKey, model string, temperature float64, opts ...option.ClientOption) (*GeminiGenerator, error) {
	if model == "" || strings.HasPrefix(model, "claude") {
		model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	m := client.GenerativeModel(model)
	m.SetTemperature(float32(temperature))
	return &GeminiGenerator{client: client, model: m}, nil
}

// Name returns the provider identifier.
func (g *GeminiGenerator) Name() string { return ProviderGemini }

// Generate sends prompt and returns the text of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", eris.Wrap(err, "gemini: generate content")
	}
	return geminiText(resp)
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error { return g.client.Close() }

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if txt, ok := p.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
