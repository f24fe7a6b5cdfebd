package scrape

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// maxPageBytes caps how much of a menu page is read.
const maxPageBytes = 2 << 20

// LocalScraper fetches a menu page directly and extracts its text with
// goquery. It costs nothing, so the chain tries it before Jina or Firecrawl.
type LocalScraper struct {
	client    *http.Client
	userAgent string
}

// NewLocalScraper creates a LocalScraper. timeout bounds the whole fetch.
func NewLocalScraper(userAgent string, timeout time.Duration) *LocalScraper {
	return &LocalScraper{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches targetURL and returns the text of its menu container.
// Bot walls, error statuses and non-HTML bodies are errors so the chain
// moves on.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp.StatusCode, resp.Header, body); blocked {
		return nil, eris.Errorf("local_http: %s blocked (%s)", targetURL, blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: %s returned status %d", targetURL, resp.StatusCode)
	}

	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/pdf" {
		return nil, eris.Errorf("local_http: %s serves a PDF, not HTML", targetURL)
	}
	body, err = toUTF8(body, params["charset"])
	if err != nil {
		return nil, eris.Wrap(err, "local_http: decode")
	}

	title, text, err := ExtractMenuText(body)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: extract")
	}

	return &Result{
		Page: Page{
			URL:        targetURL,
			Title:      title,
			Text:       text,
			StatusCode: resp.StatusCode,
		},
		Source: l.Name(),
	}, nil
}

// toUTF8 re-encodes body from the declared charset. Small independent
// restaurants still serve windows-1252 pages.
func toUTF8(body []byte, charset string) ([]byte, error) {
	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "unsupported charset %q", charset)
	}
	return enc.NewDecoder().Bytes(body)
}
