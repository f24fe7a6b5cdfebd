package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/ai"
	"github.com/mealingabout/menu-pipeline/internal/config"
	"github.com/mealingabout/menu-pipeline/internal/cost"
	"github.com/mealingabout/menu-pipeline/internal/geo"
	"github.com/mealingabout/menu-pipeline/internal/ocr"
	"github.com/mealingabout/menu-pipeline/internal/pipeline"
	"github.com/mealingabout/menu-pipeline/internal/resilience"
	"github.com/mealingabout/menu-pipeline/internal/scrape"
	"github.com/mealingabout/menu-pipeline/internal/store"
	anthropicpkg "github.com/mealingabout/menu-pipeline/pkg/anthropic"
	"github.com/mealingabout/menu-pipeline/pkg/firecrawl"
	"github.com/mealingabout/menu-pipeline/pkg/gemini"
	"github.com/mealingabout/menu-pipeline/pkg/google"
	"github.com/mealingabout/menu-pipeline/pkg/jina"
	"github.com/mealingabout/menu-pipeline/pkg/perplexity"
)

// pipelineEnv holds the store and the wired pipeline for the run and stage
// commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "menus.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// migrateStore applies the schema, retrying transient connection failures
// while the database comes up.
func migrateStore(ctx context.Context, st store.Store) error {
	p := resilience.DefaultRetryPolicy()
	p.OnRetry = resilience.RetryLogger("store", "migrate")
	return eris.Wrap(resilience.Do(ctx, p, st.Migrate), "migrate store")
}

// initPipeline validates config, opens and migrates the store, builds every
// client and returns the pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	regions := geo.DefaultRegions()
	if cfg.Pipeline.RegionsFile != "" {
		loaded, err := geo.LoadRegions(cfg.Pipeline.RegionsFile)
		if err != nil {
			return nil, eris.Wrap(err, "load regions")
		}
		regions = loaded
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := migrateStore(ctx, st); err != nil {
		_ = st.Close()
		return nil, err
	}

	var geminiClient gemini.Client
	if cfg.Gemini.Key != "" {
		geminiClient = gemini.NewClient(cfg.Gemini.Key, gemini.WithBaseURL(cfg.Gemini.BaseURL), gemini.WithModel(cfg.Gemini.Model))
	}

	analyzer, err := buildAnalyzer(cfg, geminiClient)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	p := pipeline.New(cfg.Pipeline, regions, pipeline.Deps{
		Store:    st,
		Places:   google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL)),
		Finder:   scrape.NewMenuFinder(cfg.Scrape.UserAgent, cfg.Scrape.Timeout()),
		Scraper:  buildScrapeChain(cfg),
		PDF:      buildPDFReader(cfg, geminiClient),
		Analyzer: analyzer,
	})

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("regions", len(regions)),
		zap.Strings("ai_providers", analyzer.Providers()),
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// buildScrapeChain fetches pages locally first, then through Jina and
// Firecrawl when their keys are set.
func buildScrapeChain(c *config.Config) *scrape.Chain {
	scrapers := []scrape.Scraper{scrape.NewLocalScraper(c.Scrape.UserAgent, c.Scrape.Timeout())}
	if c.Jina.Key != "" {
		scrapers = append(scrapers, scrape.NewJinaAdapter(jina.NewClient(c.Jina.Key, jina.WithBaseURL(c.Jina.BaseURL))))
	}
	if c.Firecrawl.Key != "" {
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(firecrawl.NewClient(c.Firecrawl.Key, firecrawl.WithBaseURL(c.Firecrawl.BaseURL))))
	}
	return scrape.NewChain(c.Pipeline.MinMenuChars, scrapers...)
}

// buildPDFReader pairs pdftotext with the configured vision transcriber.
// Without one, image-only PDFs simply fail the threshold.
func buildPDFReader(c *config.Config, geminiClient gemini.Client) *ocr.PDFReader {
	calc := cost.NewCalculator(cost.RatesFromConfig(c.Pricing))
	vision, err := ocr.NewTranscriber(c.OCR, geminiClient, ocr.WithCost(calc, c.Gemini.Model))
	if err != nil {
		zap.L().Warn("pdf vision fallback disabled", zap.Error(err))
		vision = nil
	}
	return ocr.NewPDFReader(ocr.NewPdfToText(c.OCR.PdfToTextPath), vision, c.Scrape.UserAgent, c.Scrape.PDFTimeout())
}

// buildAnalyzer orders the configured providers Perplexity, Gemini,
// Anthropic and assigns the primary, secondary and tertiary retry policies
// by position.
func buildAnalyzer(c *config.Config, geminiClient gemini.Client) (*ai.Chain, error) {
	var providers []ai.Provider
	if c.Perplexity.Key != "" {
		client := perplexity.NewClient(c.Perplexity.Key, perplexity.WithBaseURL(c.Perplexity.BaseURL), perplexity.WithModel(c.Perplexity.Model))
		providers = append(providers, ai.NewPerplexityProvider(client, c.Perplexity.Model))
	}
	if geminiClient != nil {
		providers = append(providers, ai.NewGeminiProvider(geminiClient, c.Gemini.Model))
	}
	if c.Anthropic.Key != "" {
		providers = append(providers, ai.NewAnthropicProvider(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens))
	}
	if len(providers) == 0 {
		return nil, eris.New("no AI provider configured")
	}

	maxWait := time.Duration(c.Pipeline.MaxRateLimitWaitSecs) * time.Second
	steps := make([]ai.Step, len(providers))
	for i, prov := range providers {
		steps[i] = ai.Step{Provider: prov, Policy: ai.TertiaryPolicy()}
		switch i {
		case 0:
			steps[i].Policy = ai.PrimaryPolicy(c.Pipeline.PrimaryParseRetries)
		case 1:
			steps[i].Policy = ai.SecondaryPolicy(maxWait)
		}
	}

	timeout := time.Duration(c.Pipeline.AITimeoutSecs) * time.Second
	calc := cost.NewCalculator(cost.RatesFromConfig(c.Pricing))
	return ai.NewChain(timeout, steps, ai.WithCalculator(calc)), nil
}
