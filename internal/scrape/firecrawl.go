package scrape

import (
	"context"
	"time"

	"github.com/mealingabout/menu-pipeline/internal/resilience"
	"github.com/mealingabout/menu-pipeline/pkg/firecrawl"
)

// FirecrawlAdapter is the paid last resort for menu pages that defeat both
// the local fetch and Jina.
type FirecrawlAdapter struct {
	client  firecrawl.Client
	breaker *resilience.Breaker
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client) *FirecrawlAdapter {
	return &FirecrawlAdapter{
		client: client,
		breaker: resilience.NewBreaker("firecrawl", resilience.BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         2 * time.Minute,
		}),
	}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns false while the circuit is open.
func (f *FirecrawlAdapter) Supports(_ string) bool {
	return f.breaker.State() != resilience.CircuitOpen
}

// Scrape renders a single URL via Firecrawl and returns its main content.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             targetURL,
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
			ExcludeTags:     []string{"script", "style", "nav", "footer", "header"},
			WaitFor:         2000,
			BlockAds:        true,
		})
	})
	if err != nil {
		return nil, err
	}

	pageURL := resp.Data.Metadata.SourceURL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &Result{
		Page: Page{
			URL:        pageURL,
			Title:      resp.Data.Metadata.Title,
			Text:       CleanText(resp.Data.Markdown),
			StatusCode: resp.Data.Metadata.StatusCode,
		},
		Source: f.Name(),
	}, nil
}
