package ai

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/pkg/perplexity"
)

// PerplexityProvider analyzes menus with Perplexity in JSON mode.
type PerplexityProvider struct {
	client perplexity.Client
	model  string
}

// NewPerplexityProvider creates a PerplexityProvider.
func NewPerplexityProvider(client perplexity.Client, model string) *PerplexityProvider {
	return &PerplexityProvider{client: client, model: model}
}

// Name implements Provider.
func (p *PerplexityProvider) Name() string { return cost.ProviderPerplexity }

// Analyze implements Provider.
func (p *PerplexityProvider) Analyze(ctx context.Context, menuText string) (*Result, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: jsonOnlySystemPrompt},
			{Role: "user", Content: userMessage(menuText)},
		},
		ResponseFormat: &perplexity.ResponseFormat{Type: "json_object"},
		DisableSearch:  true,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(err, apiErr.StatusCode, apiErr.RetryAfter)
		}
		return nil, eris.Wrap(err, "ai: perplexity")
	}
	content, ok := resp.Content()
	if !ok {
		return nil, eris.Wrap(ErrEmptyResponse, "ai: perplexity")
	}

	items, err := ParseItems(content)
	if err != nil {
		return nil, err
	}
	return &Result{
		Items:    items,
		Provider: p.Name(),
		Model:    p.model,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
