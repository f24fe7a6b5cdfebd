package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/pkg/gemini"
)

// TranscribePrompt asks a vision model to list the items of a menu PDF.
const TranscribePrompt = "Extract all menu items and their descriptions from this restaurant menu PDF. " +
	"List every item with its name, description, and price if shown."

// GeminiVision transcribes PDFs by sending the raw bytes inline to Gemini.
type GeminiVision struct {
	client      gemini.Client
	model       string
	calc        *cost.Calculator
	pricedModel string
}

// VisionOption configures a GeminiVision transcriber.
type VisionOption func(*GeminiVision)

// WithCost prices each transcription at the rates for pricedModel, which
// should name the model the client sends when none is set per request.
func WithCost(calc *cost.Calculator, pricedModel string) VisionOption {
	return func(g *GeminiVision) {
		g.calc = calc
		g.pricedModel = pricedModel
	}
}

// NewGeminiVision creates a GeminiVision transcriber. An empty model uses
// the client's default.
func NewGeminiVision(client gemini.Client, model string, opts ...VisionOption) *GeminiVision {
	g := &GeminiVision{client: client, model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Transcriber.
func (g *GeminiVision) Name() string { return "gemini" }

// Transcribe implements Transcriber.
func (g *GeminiVision) Transcribe(ctx context.Context, pdf []byte) (string, model.TokenUsage, error) {
	resp, err := g.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model: g.model,
		Contents: []gemini.Content{{
			Role: "user",
			Parts: []gemini.Part{
				gemini.BlobPart("application/pdf", pdf),
				gemini.TextPart(TranscribePrompt),
			},
		}},
	})
	if err != nil {
		return "", model.TokenUsage{}, eris.Wrap(err, "ocr: gemini transcribe")
	}

	in, out := resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount
	if g.calc == nil {
		return resp.Text(), model.TokenUsage{InputTokens: in, OutputTokens: out}, nil
	}
	priced := g.model
	if priced == "" {
		priced = g.pricedModel
	}
	return resp.Text(), g.calc.Usage(cost.ProviderGemini, priced, in, out), nil
}
