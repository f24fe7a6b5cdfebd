// Package scrape locates restaurant menus and reads their text from the web.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order. A page with at least minChars of
// text wins immediately; shorter pages fall through to the next scraper and
// the longest one seen is returned if nothing reaches the threshold.
type Chain struct {
	scrapers []Scraper
	minChars int
}

// NewChain creates a Chain. Scrapers are tried in order.
func NewChain(minChars int, scrapers ...Scraper) *Chain {
	return &Chain{
		scrapers: scrapers,
		minChars: minChars,
	}
}

// Scrape tries each scraper in order for a single URL.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var (
		best    *Result
		lastErr error
	)
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		if result == nil {
			continue
		}
		n := TextLen(result.Page.Text)
		if n >= c.minChars {
			return result, nil
		}
		zap.L().Debug("scrape: page too short, trying next",
			zap.String("scraper", s.Name()),
			zap.String("url", targetURL),
			zap.Int("chars", n),
		)
		if best == nil || n > TextLen(best.Page.Text) {
			best = result
		}
	}
	if best != nil {
		return best, nil
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}
