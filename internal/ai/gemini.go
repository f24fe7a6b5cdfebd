package ai

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/pkg/gemini"
)

// GeminiProvider analyzes menus with Gemini, asking for a JSON response.
type GeminiProvider struct {
	client gemini.Client
	model  string
}

// NewGeminiProvider creates a GeminiProvider.
func NewGeminiProvider(client gemini.Client, model string) *GeminiProvider {
	return &GeminiProvider{client: client, model: model}
}

// Name implements Provider.
func (g *GeminiProvider) Name() string { return cost.ProviderGemini }

// Analyze implements Provider. Gemini puts its retry hint in the error
// message ("Please retry in 41.8s"), which the rate-limit error picks up.
func (g *GeminiProvider) Analyze(ctx context.Context, menuText string) (*Result, error) {
	resp, err := g.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model: g.model,
		Contents: []gemini.Content{{
			Role:  "user",
			Parts: []gemini.Part{gemini.TextPart(userMessage(menuText))},
		}},
		GenerationConfig: &gemini.GenerationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		var apiErr *gemini.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(err, apiErr.StatusCode, apiErr.RetryAfter)
		}
		return nil, eris.Wrap(err, "ai: gemini")
	}

	items, err := ParseItems(resp.Text())
	if err != nil {
		return nil, err
	}
	return &Result{
		Items:    items,
		Provider: g.Name(),
		Model:    g.model,
		Usage: model.TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}
