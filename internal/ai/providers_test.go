package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealingabout/menu-pipeline/internal/resilience"
	"github.com/mealingabout/menu-pipeline/pkg/anthropic"
	"github.com/mealingabout/menu-pipeline/pkg/gemini"
	"github.com/mealingabout/menu-pipeline/pkg/perplexity"
)

const itemsJSON = `{"items": [{"name": "Veggie Burger", "labels": [{"type": "vegetarian", "confidence": "confirmed"}]}]}`

type fakePerplexity struct {
	req  perplexity.ChatCompletionRequest
	resp *perplexity.ChatCompletionResponse
	err  error
}

func (f *fakePerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeGemini struct {
	req  gemini.GenerateRequest
	resp *gemini.GenerateResponse
	err  error
}

func (f *fakeGemini) GenerateContent(_ context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	f.req = req
	return f.resp, f.err
}

type fakeAnthropic struct {
	req  anthropic.MessageRequest
	resp *anthropic.MessageResponse
	err  error
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestPerplexityProvider_Analyze(t *testing.T) {
	t.Parallel()

	fake := &fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: itemsJSON}}},
		Usage:   perplexity.Usage{PromptTokens: 900, CompletionTokens: 120},
	}}
	p := NewPerplexityProvider(fake, "sonar")

	res, err := p.Analyze(context.Background(), "Veggie Burger 12")
	require.NoError(t, err)
	assert.Equal(t, "perplexity", res.Provider)
	assert.Equal(t, "sonar", res.Model)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 900, res.Usage.InputTokens)

	assert.Equal(t, "sonar", fake.req.Model)
	require.Len(t, fake.req.Messages, 2)
	assert.Equal(t, "system", fake.req.Messages[0].Role)
	assert.Equal(t, jsonOnlySystemPrompt, fake.req.Messages[0].Content)
	assert.True(t, strings.HasSuffix(fake.req.Messages[1].Content, "\n\nMenu text:\nVeggie Burger 12"))
	require.NotNil(t, fake.req.ResponseFormat)
	assert.Equal(t, "json_object", fake.req.ResponseFormat.Type)
	assert.True(t, fake.req.DisableSearch)
}

func TestPerplexityProvider_Errors(t *testing.T) {
	t.Parallel()

	p := NewPerplexityProvider(&fakePerplexity{err: &perplexity.APIError{StatusCode: 429, RetryAfter: "7"}}, "sonar")
	_, err := p.Analyze(context.Background(), "menu")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	d, ok := resilience.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	p = NewPerplexityProvider(&fakePerplexity{err: &perplexity.APIError{StatusCode: 502}}, "sonar")
	_, err = p.Analyze(context.Background(), "menu")
	var te *resilience.TransientError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 502, te.StatusCode)

	p = NewPerplexityProvider(&fakePerplexity{resp: &perplexity.ChatCompletionResponse{}}, "sonar")
	_, err = p.Analyze(context.Background(), "menu")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResponse))
	assert.False(t, IsMalformed(err))

	p = NewPerplexityProvider(&fakePerplexity{resp: &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "Sure! Here is the menu."}}},
	}}, "sonar")
	_, err = p.Analyze(context.Background(), "menu")
	assert.True(t, IsMalformed(err))
}

func TestGeminiProvider_Analyze(t *testing.T) {
	t.Parallel()

	fake := &fakeGemini{resp: &gemini.GenerateResponse{
		Candidates:    []gemini.Candidate{{Content: gemini.Content{Parts: []gemini.Part{{Text: "```json\n" + itemsJSON + "\n```"}}}}},
		UsageMetadata: gemini.UsageMetadata{PromptTokenCount: 1000, CandidatesTokenCount: 200},
	}}
	g := NewGeminiProvider(fake, "gemini-2.0-flash")

	res, err := g.Analyze(context.Background(), "Veggie Burger 12")
	require.NoError(t, err)
	assert.Equal(t, "gemini", res.Provider)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 200, res.Usage.OutputTokens)

	assert.Equal(t, "gemini-2.0-flash", fake.req.Model)
	require.NotNil(t, fake.req.GenerationConfig)
	assert.Equal(t, "application/json", fake.req.GenerationConfig.ResponseMimeType)
	require.Len(t, fake.req.Contents, 1)
	assert.Contains(t, fake.req.Contents[0].Parts[0].Text, "Menu text:\nVeggie Burger 12")
}

func TestGeminiProvider_RateLimitHintFromMessage(t *testing.T) {
	t.Parallel()

	g := NewGeminiProvider(&fakeGemini{err: &gemini.APIError{
		StatusCode: 429,
		Message:    "Resource has been exhausted. Please retry in 41.8s.",
	}}, "gemini-2.0-flash")

	_, err := g.Analyze(context.Background(), "menu")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
	d, ok := resilience.RetryAfterHint(err)
	require.True(t, ok)
	assert.Equal(t, 42*time.Second, d)
}

func TestAnthropicProvider_Analyze(t *testing.T) {
	t.Parallel()

	fake := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: itemsJSON}},
		Usage:   anthropic.TokenUsage{InputTokens: 1500, OutputTokens: 300},
	}}
	a := NewAnthropicProvider(fake, "claude-haiku-4-5-20251001", 0)

	res, err := a.Analyze(context.Background(), "Veggie Burger 12")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Provider)
	assert.Equal(t, 1500, res.Usage.InputTokens)
	assert.Equal(t, int64(4096), fake.req.MaxTokens)
	assert.Equal(t, "claude-haiku-4-5-20251001", fake.req.Model)
	require.Len(t, fake.req.Messages, 1)
	assert.Equal(t, "user", fake.req.Messages[0].Role)
	assert.Equal(t, jsonOnlySystemPrompt, fake.req.System)
	assert.Equal(t, "{", fake.req.Prefill)
}

func TestAnthropicProvider_Errors(t *testing.T) {
	t.Parallel()

	a := NewAnthropicProvider(&fakeAnthropic{err: &anthropic.APIError{StatusCode: 529, Message: "overloaded"}}, "m", 4096)
	_, err := a.Analyze(context.Background(), "menu")
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsRateLimited(err))

	a = NewAnthropicProvider(&fakeAnthropic{err: errors.New("dial tcp: connection refused")}, "m", 4096)
	_, err = a.Analyze(context.Background(), "menu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai: anthropic")
}

func TestAnthropicProvider_TruncatedIsMalformed(t *testing.T) {
	t.Parallel()

	a := NewAnthropicProvider(&fakeAnthropic{resp: &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: `"items":[{"name":"Sou`}},
		StopReason: "max_tokens",
	}}, "m", 64)
	_, err := a.Analyze(context.Background(), "menu")
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}
