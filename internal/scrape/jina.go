package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mealingabout/menu-pipeline/internal/resilience"
	"github.com/mealingabout/menu-pipeline/pkg/jina"
)

// JinaAdapter reads menu pages through Jina Reader, which renders
// client-side menus the local fetch cannot see.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter creates a JinaAdapter. Three consecutive failures open the
// circuit for a minute so later restaurants fall straight through.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client: client,
		breaker: resilience.NewBreaker("jina", resilience.BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         time.Minute,
		}),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns false while the circuit is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape reads targetURL as plain text, stripping the same chrome the
// local extractor removes.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.Call(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL,
			jina.WithFormat("text"),
			jina.WithRemoveSelector(strings.Split(noiseSelector, ", ")...),
			jina.WithRenderTimeout(20*time.Second),
		)
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: no usable menu text for %s", targetURL)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Page: Page{
			URL:        resp.Data.URL,
			Title:      resp.Data.Title,
			Text:       CleanText(resp.Data.Content),
			StatusCode: resp.Code,
		},
		Source: j.Name(),
	}, nil
}

// shellContentMaxChars is the size under which reader output that asks
// for JavaScript is treated as an unrendered shell.
const shellContentMaxChars = 1000

// needsFallback reports whether Jina returned an error code, nothing, or an
// interstitial in place of the menu.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil || (resp.Code != 0 && resp.Code != 200) {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if content == "" {
		return true
	}
	if blocked, _ := DetectBlock(resp.Code, nil, []byte(content)); blocked {
		return true
	}
	return TextLen(content) < shellContentMaxChars &&
		strings.Contains(strings.ToLower(content), "enable javascript")
}
