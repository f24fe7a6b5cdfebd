package ai

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/pkg/anthropic"
)

// AnthropicProvider analyzes menus with Claude.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates an AnthropicProvider.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Provider.
func (a *AnthropicProvider) Name() string { return cost.ProviderAnthropic }

// Analyze implements Provider.
func (a *AnthropicProvider) Analyze(ctx context.Context, menuText string) (*Result, error) {
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    jsonOnlySystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: userMessage(menuText)}},
		Prefill:   "{",
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, classifyStatus(err, apiErr.StatusCode, apiErr.RetryAfter)
		}
		return nil, eris.Wrap(err, "ai: anthropic")
	}

	if resp.Truncated() {
		return nil, &MalformedResponseError{Err: eris.New("anthropic reply truncated at max_tokens")}
	}

	items, err := ParseItems(resp.Text())
	if err != nil {
		return nil, err
	}
	return &Result{
		Items:    items,
		Provider: a.Name(),
		Model:    a.model,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
