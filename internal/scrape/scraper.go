package scrape

import (
	"context"
	"unicode/utf8"
)

// Page is the readable text of a single fetched URL.
type Page struct {
	URL        string
	Title      string
	Text       string
	StatusCode int
}

// Result holds a scraped page with its source.
type Result struct {
	Page   Page
	Source string // e.g. "local_http", "jina", "firecrawl"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// TextLen counts characters, not bytes. Menu text thresholds use it.
func TextLen(s string) int {
	return utf8.RuneCountInString(s)
}
