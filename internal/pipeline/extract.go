package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/scrape"
	"github.com/mealingabout/menu-pipeline/internal/store"
)

const errInsufficientText = "Could not extract menu text"

// Extract pulls raw menu text for every pending restaurant with a menu URL.
// The record is marked extracting before any fetch so an interrupted run
// leaves it visibly stuck rather than silently pending.
func (p *Pipeline) Extract(ctx context.Context) (*Report, error) {
	rows, err := p.store.ListRestaurants(ctx, store.RestaurantFilter{
		Status:     model.StatusPending,
		HasMenuURL: store.Bool(true),
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: list restaurants")
	}
	zap.L().Info("extract: starting", zap.Int("restaurants", len(rows)))

	rep := &Report{}
	err = forEach(ctx, rep, p.cfg.Concurrency, newLimiter(0), rows,
		func(ctx context.Context, r model.Restaurant) outcome {
			return p.extractOne(ctx, rep, r)
		})
	if rep.Usage.Cost > 0 || rep.Usage.InputTokens > 0 {
		zap.L().Info("extract: vision usage",
			zap.Int("input_tokens", rep.Usage.InputTokens),
			zap.Int("output_tokens", rep.Usage.OutputTokens),
			zap.Float64("cost_usd", rep.Usage.Cost),
		)
	}
	return rep, eris.Wrap(err, "extract: interrupted")
}

func (p *Pipeline) extractOne(ctx context.Context, rep *Report, r model.Restaurant) outcome {
	log := recordLogger(model.StageExtract, r)

	if err := p.store.SetStatus(ctx, r.ID, model.StatusPending, model.StatusExtracting, ""); err != nil {
		log.Warn("extract: mark extracting", zap.Error(err))
		return outcomeSkipped
	}

	text, source, err := p.extractText(ctx, rep, r)
	if err != nil {
		p.markFailed(ctx, log, r.ID, model.StatusExtracting, err.Error())
		log.Warn("extract: extraction failed", zap.Error(err))
		return outcomeFailed
	}

	chars := scrape.TextLen(text)
	if chars < p.minMenuChars() {
		p.markFailed(ctx, log, r.ID, model.StatusExtracting, errInsufficientText)
		log.Info("extract: insufficient text", zap.Int("chars", chars))
		return outcomeFailed
	}

	if err := p.store.ReplaceRawMenu(ctx, r.ID, text, *r.MenuType); err != nil {
		p.markFailed(ctx, log, r.ID, model.StatusExtracting, err.Error())
		log.Error("extract: store raw menu", zap.Error(err))
		return outcomeFailed
	}
	if err := p.store.SetStatus(ctx, r.ID, model.StatusExtracting, model.StatusExtracted, ""); err != nil {
		log.Error("extract: mark extracted", zap.Error(err))
		return outcomeFailed
	}
	log.Info("extract: menu text extracted", zap.Int("chars", chars), zap.String("source", source))
	return outcomeSucceeded
}

// extractText dispatches on menu type and returns the text with the name of
// the source that produced it. Vision transcription usage is added to rep.
func (p *Pipeline) extractText(ctx context.Context, rep *Report, r model.Restaurant) (string, string, error) {
	var menuType model.MenuType
	if r.MenuType != nil {
		menuType = *r.MenuType
	}
	switch menuType {
	case model.MenuTypePDF:
		doc, err := p.pdf.Read(ctx, *r.MenuURL)
		if err != nil {
			return "", "", err
		}
		rep.addUsage(doc.Usage)
		return doc.Text, "pdf_" + string(doc.Method), nil
	case model.MenuTypeHTML:
		res, err := p.scraper.Scrape(ctx, *r.MenuURL)
		if err != nil {
			return "", "", err
		}
		return res.Page.Text, res.Source, nil
	default:
		return "", "", eris.Errorf("extract: unsupported menu type %q", menuType)
	}
}
