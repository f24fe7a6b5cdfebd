// Package jina is a client for Jina Reader, which renders a page in a
// headless browser and returns its readable content.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://r.jina.ai"

// Client reads a single URL through Jina Reader.
type Client interface {
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error)
}

// ReadResponse is the JSON envelope returned by the reader.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData is the rendered page.
type ReadData struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Usage   struct {
		Tokens int `json:"tokens"`
	} `json:"usage"`
}

// APIError is a non-200 reply from the reader. Callers decide whether to
// retry; the client never does.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jina: status %d: %s", e.StatusCode, e.Body)
}

// ReadOption tunes a single read. Each option maps to a reader header.
type ReadOption func(http.Header)

// WithFormat sets the return format: text, markdown or html.
func WithFormat(format string) ReadOption {
	return func(h http.Header) { h.Set("X-Return-Format", format) }
}

// WithTargetSelector limits extraction to elements matching the selectors.
func WithTargetSelector(selectors ...string) ReadOption {
	return func(h http.Header) { h.Set("X-Target-Selector", strings.Join(selectors, ", ")) }
}

// WithRemoveSelector drops elements matching the selectors first.
func WithRemoveSelector(selectors ...string) ReadOption {
	return func(h http.Header) { h.Set("X-Remove-Selector", strings.Join(selectors, ", ")) }
}

// WithRenderTimeout caps how long the reader waits for the page to settle.
// Menu widgets loaded by script often need several seconds.
func WithRenderTimeout(d time.Duration) ReadOption {
	return func(h http.Header) { h.Set("X-Timeout", strconv.Itoa(int(d.Seconds()))) }
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the reader endpoint.
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a reader client. An empty apiKey uses the anonymous,
// lower rate limit.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 45 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read posts targetURL in the body so query strings and fragments on menu
// links survive intact.
func (c *httpClient) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error) {
	payload, err := json.Marshal(map[string]string{"url": targetURL})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "text")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for _, o := range opts {
		o(req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "jina: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out ReadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal response")
	}
	return &out, nil
}
