package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	OCR        OCRConfig        `yaml:"ocr" mapstructure:"ocr"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings (blocked-page fallback).
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (last-resort fallback).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// OCRConfig configures PDF text extraction.
type OCRConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Vision        string `yaml:"vision" mapstructure:"vision"`
	MistralKey    string `yaml:"mistral_key" mapstructure:"mistral_key"`
	MistralModel  string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// ScrapeConfig configures website fetching.
type ScrapeConfig struct {
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PDFTimeoutSecs int    `yaml:"pdf_timeout_secs" mapstructure:"pdf_timeout_secs"`
}

// Timeout returns the page fetch timeout.
func (c ScrapeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PDFTimeout returns the PDF download timeout.
func (c ScrapeConfig) PDFTimeout() time.Duration {
	return time.Duration(c.PDFTimeoutSecs) * time.Second
}

// PipelineConfig configures stage selection, throttling and the AI fallback chain.
type PipelineConfig struct {
	RegionsFile          string   `yaml:"regions_file" mapstructure:"regions_file"`
	MinRating            float64  `yaml:"min_rating" mapstructure:"min_rating"`
	MinReviews           int      `yaml:"min_reviews" mapstructure:"min_reviews"`
	ChainBlocklist       []string `yaml:"chain_blocklist" mapstructure:"chain_blocklist"`
	EnrichBatchSize      int      `yaml:"enrich_batch_size" mapstructure:"enrich_batch_size"`
	Concurrency          int      `yaml:"concurrency" mapstructure:"concurrency"`
	DiscoverDelayMs      int      `yaml:"discover_delay_ms" mapstructure:"discover_delay_ms"`
	EnrichDelayMs        int      `yaml:"enrich_delay_ms" mapstructure:"enrich_delay_ms"`
	FindMenusDelayMs     int      `yaml:"find_menus_delay_ms" mapstructure:"find_menus_delay_ms"`
	AnalyzeDelayMs       int      `yaml:"analyze_delay_ms" mapstructure:"analyze_delay_ms"`
	PlacesTimeoutSecs    int      `yaml:"places_timeout_secs" mapstructure:"places_timeout_secs"`
	AITimeoutSecs        int      `yaml:"ai_timeout_secs" mapstructure:"ai_timeout_secs"`
	MinMenuChars         int      `yaml:"min_menu_chars" mapstructure:"min_menu_chars"`
	PrimaryParseRetries  int      `yaml:"primary_parse_retries" mapstructure:"primary_parse_retries"`
	MaxRateLimitWaitSecs int      `yaml:"max_rate_limit_wait_secs" mapstructure:"max_rate_limit_wait_secs"`
}

// PricingConfig holds per-provider pricing rates used for cost attribution.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envOnlyKeys have no default, so viper only sees their MENU_* variables
// when they are bound explicitly.
var envOnlyKeys = []string{
	"store.database_url",
	"google.key",
	"perplexity.key",
	"gemini.key",
	"anthropic.key",
	"jina.key",
	"firecrawl.key",
	"ocr.mistral_key",
	"pipeline.regions_file",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MENU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.vision", "gemini")
	v.SetDefault("ocr.mistral_model", "mistral-ocr-latest")
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; MealingAbout/1.0)")
	v.SetDefault("scrape.timeout_secs", 10)
	v.SetDefault("scrape.pdf_timeout_secs", 15)
	v.SetDefault("pipeline.min_rating", 4.0)
	v.SetDefault("pipeline.min_reviews", 30)
	v.SetDefault("pipeline.chain_blocklist", []string{})
	v.SetDefault("pipeline.enrich_batch_size", 50)
	v.SetDefault("pipeline.concurrency", 1)
	v.SetDefault("pipeline.discover_delay_ms", 200)
	v.SetDefault("pipeline.enrich_delay_ms", 100)
	v.SetDefault("pipeline.find_menus_delay_ms", 500)
	v.SetDefault("pipeline.analyze_delay_ms", 1000)
	v.SetDefault("pipeline.places_timeout_secs", 10)
	v.SetDefault("pipeline.ai_timeout_secs", 30)
	v.SetDefault("pipeline.min_menu_chars", 100)
	v.SetDefault("pipeline.primary_parse_retries", 2)
	v.SetDefault("pipeline.max_rate_limit_wait_secs", 90)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.per_mtok", 1.00)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a full pipeline run cannot work without.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if c.Google.Key == "" {
		missing = append(missing, "google.key")
	}
	if c.Perplexity.Key == "" && c.Gemini.Key == "" && c.Anthropic.Key == "" {
		missing = append(missing, "one of perplexity.key, gemini.key, anthropic.key")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 10 {
		return eris.Errorf("config: pipeline.concurrency must be between 1 and 10, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.MinMenuChars <= 0 {
		return eris.New("config: pipeline.min_menu_chars must be > 0")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
