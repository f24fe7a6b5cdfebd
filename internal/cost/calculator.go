// Package cost attributes USD cost to AI provider calls.
package cost

import (
	"github.com/mealingabout/menu-pipeline/internal/config"
	"github.com/mealingabout/menu-pipeline/internal/model"
)

// Provider names used for cost lookups.
const (
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderPerplexity = "perplexity"
)

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic  map[string]ModelRate
	Gemini     map[string]ModelRate
	Perplexity PerplexityRate
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// PerplexityRate holds Perplexity pricing: a flat request fee plus tokens.
type PerplexityRate struct {
	PerQuery float64
	PerMTok  float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int) float64 {
	return tokenCost(c.rates.Anthropic, model, input, output)
}

// Gemini computes the cost for a Gemini API call.
func (c *Calculator) Gemini(model string, input, output int) float64 {
	return tokenCost(c.rates.Gemini, model, input, output)
}

// Perplexity computes the cost for one Perplexity chat completion.
func (c *Calculator) Perplexity(input, output int) float64 {
	r := c.rates.Perplexity
	return r.PerQuery + (float64(input+output)/1e6)*r.PerMTok
}

// Usage returns token usage with its attributed cost. Unknown providers and
// models cost nothing.
func (c *Calculator) Usage(provider, modelName string, input, output int) model.TokenUsage {
	u := model.TokenUsage{InputTokens: input, OutputTokens: output}
	switch provider {
	case ProviderAnthropic:
		u.Cost = c.Claude(modelName, input, output)
	case ProviderGemini:
		u.Cost = c.Gemini(modelName, input, output)
	case ProviderPerplexity:
		u.Cost = c.Perplexity(input, output)
	}
	return u
}

func tokenCost(rates map[string]ModelRate, model string, input, output int) float64 {
	rate, ok := rates[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.0-flash":      {Input: 0.10, Output: 0.40},
			"gemini-2.0-flash-lite": {Input: 0.075, Output: 0.30},
			"gemini-2.5-flash":      {Input: 0.30, Output: 2.50},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005, PerMTok: 1.00},
	}
}

// RatesFromConfig overlays configured prices on DefaultRates.
func RatesFromConfig(cfg config.PricingConfig) Rates {
	rates := DefaultRates()
	for name, p := range cfg.Anthropic {
		rates.Anthropic[name] = ModelRate{Input: p.Input, Output: p.Output}
	}
	for name, p := range cfg.Gemini {
		rates.Gemini[name] = ModelRate{Input: p.Input, Output: p.Output}
	}
	if cfg.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = cfg.Perplexity.PerQuery
	}
	if cfg.Perplexity.PerMTok > 0 {
		rates.Perplexity.PerMTok = cfg.Perplexity.PerMTok
	}
	return rates
}
