// Package ai classifies menu items by dietary compatibility using a
// table-driven fallback chain of LLM providers.
package ai

import (
	"context"
	"net/http"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/resilience"
)

// Provider analyzes menu text with one LLM service.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, menuText string) (*Result, error)
}

// Result is a successful analysis.
type Result struct {
	Items    []model.AnalyzedItem
	Provider string
	Model    string
	Usage    model.TokenUsage
}

// classifyStatus maps an HTTP failure onto the resilience error classes so
// retry policies can tell rate limits from outages.
func classifyStatus(err error, status int, retryAfter string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return resilience.NewRateLimitError(err, retryAfter)
	case resilience.IsTransientHTTPStatus(status), status >= 500:
		return resilience.NewTransientError(err, status)
	}
	return err
}
