package scrape

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

// menuKeywords mark an anchor href as a likely HTML menu page.
var menuKeywords = []string{"menu", "food", "eat", "drink", "dine"}

// MenuLink is a located menu resource.
type MenuLink struct {
	URL  string
	Type model.MenuType
}

// ClassifyLink reports what kind of menu resource an href points at, or
// MenuTypeNone when it looks like neither a PDF nor a menu page.
func ClassifyLink(href string) model.MenuType {
	lower := strings.ToLower(href)
	if strings.HasSuffix(lower, ".pdf") {
		return model.MenuTypePDF
	}
	for _, kw := range menuKeywords {
		if strings.Contains(lower, kw) {
			return model.MenuTypeHTML
		}
	}
	return model.MenuTypeNone
}

// MenuFinder crawls a restaurant homepage for links to its menu.
type MenuFinder struct {
	userAgent string
	timeout   time.Duration
	transport http.RoundTripper
}

// FinderOption configures a MenuFinder.
type FinderOption func(*MenuFinder)

// WithTransport overrides the HTTP transport used by the collector.
func WithTransport(rt http.RoundTripper) FinderOption {
	return func(f *MenuFinder) { f.transport = rt }
}

// NewMenuFinder creates a MenuFinder.
func NewMenuFinder(userAgent string, timeout time.Duration, opts ...FinderOption) *MenuFinder {
	f := &MenuFinder{userAgent: userAgent, timeout: timeout}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Find fetches siteURL and returns the first PDF link on the page, else the
// first menu-keyword link. It returns nil and no error when the page has
// neither. Errors are fetch failures, error statuses or bot blocks.
func (f *MenuFinder) Find(ctx context.Context, siteURL string) (*MenuLink, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.userAgent),
		colly.MaxDepth(1),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetRequestTimeout(f.timeout)
	if f.transport != nil {
		c.WithTransport(f.transport)
	}

	var (
		pdfLinks  []string
		menuLinks []string
		pageErr   error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnResponse(func(r *colly.Response) {
		var header http.Header
		if r.Headers != nil {
			header = *r.Headers
		}
		if blocked, bt := DetectBlock(r.StatusCode, header, r.Body); blocked {
			pageErr = eris.Errorf("scrape: %s blocked (%s)", siteURL, bt)
			return
		}
		if r.StatusCode >= 400 {
			pageErr = eris.Errorf("scrape: %s returned status %d", siteURL, r.StatusCode)
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if pageErr != nil {
			return
		}
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		kind := ClassifyLink(href)
		if kind == model.MenuTypeNone {
			return
		}
		abs, ok := resolveLink(e.Request.URL, href)
		if !ok {
			return
		}
		if kind == model.MenuTypePDF {
			pdfLinks = append(pdfLinks, abs)
		} else {
			menuLinks = append(menuLinks, abs)
		}
	})

	visitErr := c.Visit(siteURL)
	c.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scrape: find menu")
	}
	if visitErr != nil {
		return nil, eris.Wrapf(visitErr, "scrape: visit %s", siteURL)
	}

	if pageErr != nil {
		return nil, pageErr
	}

	zap.L().Debug("scrape: menu links found",
		zap.String("site", siteURL),
		zap.Int("pdf_links", len(pdfLinks)),
		zap.Int("menu_links", len(menuLinks)),
	)

	switch {
	case len(pdfLinks) > 0:
		return &MenuLink{URL: pdfLinks[0], Type: model.MenuTypePDF}, nil
	case len(menuLinks) > 0:
		return &MenuLink{URL: menuLinks[0], Type: model.MenuTypeHTML}, nil
	}
	return nil, nil
}

// resolveLink resolves href against base and keeps only http(s) targets.
func resolveLink(base *url.URL, href string) (string, bool) {
	if base == nil {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
