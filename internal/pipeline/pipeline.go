// Package pipeline implements the five ingestion stages (discover, enrich,
// find-menus, extract, analyze) and the Runner that sequences them.
//
// Every stage selects its batch by analysis status, processes records
// independently and writes each record-level failure to the store. A stage
// returns an error only when its input cannot be loaded at all.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mealingabout/menu-pipeline/internal/ai"
	"github.com/mealingabout/menu-pipeline/internal/config"
	"github.com/mealingabout/menu-pipeline/internal/geo"
	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/ocr"
	"github.com/mealingabout/menu-pipeline/internal/scrape"
	"github.com/mealingabout/menu-pipeline/internal/store"
	"github.com/mealingabout/menu-pipeline/pkg/google"
)

// MenuFinder locates the menu link on a restaurant website.
type MenuFinder interface {
	Find(ctx context.Context, siteURL string) (*scrape.MenuLink, error)
}

// PageScraper fetches an HTML menu page as cleaned text.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// PDFReader downloads a PDF menu and returns its text.
type PDFReader interface {
	Read(ctx context.Context, url string) (*ocr.Document, error)
}

// Analyzer classifies menu text into dietary-labelled items.
type Analyzer interface {
	Analyze(ctx context.Context, menuText string) (*ai.Result, error)
}

// Deps are the collaborators the stages call out to.
type Deps struct {
	Store    store.Store
	Places   google.Client
	Finder   MenuFinder
	Scraper  PageScraper
	PDF      PDFReader
	Analyzer Analyzer
}

// Pipeline holds the stage implementations and their collaborators.
type Pipeline struct {
	cfg      config.PipelineConfig
	regions  []geo.Region
	store    store.Store
	places   google.Client
	finder   MenuFinder
	scraper  PageScraper
	pdf      PDFReader
	analyzer Analyzer
	chains   *chainFilter
	now      func() time.Time
}

// New creates a Pipeline. regions is the discovery search list.
func New(cfg config.PipelineConfig, regions []geo.Region, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		regions:  regions,
		store:    deps.Store,
		places:   deps.Places,
		finder:   deps.Finder,
		scraper:  deps.Scraper,
		pdf:      deps.PDF,
		analyzer: deps.Analyzer,
		chains:   newChainFilter(cfg.ChainBlocklist),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StageFunc runs one stage over its current batch.
type StageFunc func(ctx context.Context) (*Report, error)

// Stage returns the implementation of the named stage.
func (p *Pipeline) Stage(s model.Stage) (StageFunc, bool) {
	switch s {
	case model.StageDiscover:
		return p.Discover, true
	case model.StageEnrich:
		return p.Enrich, true
	case model.StageFindMenus:
		return p.FindMenus, true
	case model.StageExtract:
		return p.Extract, true
	case model.StageAnalyze:
		return p.Analyze, true
	}
	return nil, false
}

// Report accumulates per-record outcomes and AI usage for one stage run.
// It is safe for concurrent use.
type Report struct {
	mu    sync.Mutex
	Stats model.StageStats
	Usage model.TokenUsage
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeSkipped
)

func (r *Report) record(o outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stats.Processed++
	switch o {
	case outcomeSucceeded:
		r.Stats.Succeeded++
	case outcomeFailed:
		r.Stats.Failed++
	case outcomeSkipped:
		r.Stats.Skipped++
	}
}

func (r *Report) addUsage(u model.TokenUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Usage.Add(u)
}

// newLimiter spaces calls delayMs apart. A non-positive delay disables throttling.
func newLimiter(delayMs int) *rate.Limiter {
	if delayMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(delayMs)*time.Millisecond), 1)
}

// forEach runs fn over items with at most limit in flight, waiting on
// limiter before each start. fn handles its own failures; forEach only stops
// early when ctx is cancelled.
func forEach[T any](ctx context.Context, rep *Report, limit int, limiter *rate.Limiter, items []T, fn func(context.Context, T) outcome) error {
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		if err := limiter.Wait(ctx); err != nil {
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			rep.record(fn(ctx, item))
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) placesTimeout() time.Duration {
	if p.cfg.PlacesTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.cfg.PlacesTimeoutSecs) * time.Second
}

func (p *Pipeline) minMenuChars() int {
	if p.cfg.MinMenuChars <= 0 {
		return 100
	}
	return p.cfg.MinMenuChars
}

func recordLogger(stage model.Stage, r model.Restaurant) *zap.Logger {
	return zap.L().With(
		zap.String("stage", string(stage)),
		zap.String("restaurant", r.Name),
		zap.String("slug", r.Slug),
	)
}

// markFailed moves a record from `from` to failed with msg. A failed write
// is logged; the record is then left for an operator requeue.
func (p *Pipeline) markFailed(ctx context.Context, log *zap.Logger, id string, from model.AnalysisStatus, msg string) {
	if err := p.store.SetStatus(ctx, id, from, model.StatusFailed, msg); err != nil {
		log.Error("pipeline: mark failed", zap.String("reason", msg), zap.Error(err))
	}
}

func menuTypePtr(t model.MenuType) *model.MenuType { return &t }
