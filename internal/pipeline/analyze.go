package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

const errNoRawText = "No raw menu text on file"

// Analyze classifies the raw menu text of every extracted restaurant. On
// success the stored items are replaced wholesale and the record becomes
// analyzed; on failure it becomes failed and published items are untouched.
func (p *Pipeline) Analyze(ctx context.Context) (*Report, error) {
	jobs, err := p.store.ListAnalysisJobs(ctx, 0)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: list jobs")
	}
	zap.L().Info("analyze: starting", zap.Int("restaurants", len(jobs)))

	rep := &Report{}
	err = forEach(ctx, rep, p.cfg.Concurrency, newLimiter(p.cfg.AnalyzeDelayMs), jobs,
		func(ctx context.Context, job model.AnalysisJob) outcome {
			return p.analyzeOne(ctx, rep, job)
		})

	zap.L().Info("analyze: usage",
		zap.Int("input_tokens", rep.Usage.InputTokens),
		zap.Int("output_tokens", rep.Usage.OutputTokens),
		zap.Float64("cost_usd", rep.Usage.Cost),
	)
	return rep, eris.Wrap(err, "analyze: interrupted")
}

func (p *Pipeline) analyzeOne(ctx context.Context, rep *Report, job model.AnalysisJob) outcome {
	r := job.Restaurant
	log := recordLogger(model.StageAnalyze, r)

	if err := p.store.SetStatus(ctx, r.ID, model.StatusExtracted, model.StatusAnalyzing, ""); err != nil {
		log.Warn("analyze: mark analyzing", zap.Error(err))
		return outcomeSkipped
	}

	if strings.TrimSpace(job.RawText) == "" {
		p.markFailed(ctx, log, r.ID, model.StatusAnalyzing, errNoRawText)
		log.Warn("analyze: no raw text")
		return outcomeFailed
	}

	res, err := p.analyzer.Analyze(ctx, job.RawText)
	if err != nil {
		p.markFailed(ctx, log, r.ID, model.StatusAnalyzing, err.Error())
		log.Warn("analyze: analysis failed", zap.Error(err))
		return outcomeFailed
	}
	rep.addUsage(res.Usage)

	items := make([]model.MenuItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, model.MapItem(r.ID, it))
	}
	if err := p.store.ReplaceMenuItems(ctx, r.ID, items, p.now()); err != nil {
		p.markFailed(ctx, log, r.ID, model.StatusAnalyzing, err.Error())
		log.Error("analyze: store menu items", zap.Error(err))
		return outcomeFailed
	}

	counts := model.CountLabels(res.Items)
	log.Info("analyze: menu analyzed",
		zap.String("provider", res.Provider),
		zap.Int("items", len(items)),
		zap.Int("vegan", counts.Vegan),
		zap.Int("vegetarian", counts.Vegetarian),
		zap.Int("gluten_free", counts.GlutenFree),
		zap.Float64("cost_usd", res.Usage.Cost),
	)
	return outcomeSucceeded
}
