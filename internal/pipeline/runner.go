package pipeline

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/store"
)

// Runner executes stages in order, records the run and prints a summary.
// It never stops early: a failed stage is recorded and the next one runs.
type Runner struct {
	pipeline *Pipeline
	store    store.Store
	out      io.Writer
}

// NewRunner creates a Runner that prints its summary table to out.
func NewRunner(p *Pipeline, st store.Store, out io.Writer) *Runner {
	return &Runner{pipeline: p, store: st, out: out}
}

// RunAll runs every stage once, in order.
func (r *Runner) RunAll(ctx context.Context) (*model.Run, error) {
	return r.Run(ctx, model.AllStages())
}

// Run executes the given stages and persists the outcome. Bookkeeping
// failures are logged and never stop a stage; stage failures are reported
// through Run.Failed.
func (r *Runner) Run(ctx context.Context, stages []model.Stage) (*model.Run, error) {
	recorded := true
	run, err := r.store.CreateRun(ctx)
	if err != nil {
		zap.L().Error("runner: create run, continuing unrecorded", zap.Error(err))
		recorded = false
		run = &model.Run{
			ID:        uuid.New().String(),
			Status:    model.RunStatusRunning,
			StartedAt: time.Now().UTC(),
		}
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("runner: pipeline starting", zap.Int("stages", len(stages)))

	for _, s := range stages {
		fn, ok := r.pipeline.Stage(s)
		if !ok {
			run.Stages = append(run.Stages, model.StageResult{
				Name:  s,
				Error: fmt.Sprintf("unknown stage %q", s),
			})
			continue
		}
		run.Stages = append(run.Stages, runStage(ctx, s, fn))
	}

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Status = model.RunStatusComplete
	if run.Failed() {
		run.Status = model.RunStatusFailed
	}
	// Detached so a cancelled run is still recorded.
	if recorded {
		if err := r.store.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
			log.Error("runner: complete run", zap.Error(err))
		}
	}

	log.Info("runner: pipeline finished",
		zap.String("status", string(run.Status)),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	)
	if err := PrintSummary(r.out, run); err != nil {
		log.Warn("runner: print summary", zap.Error(err))
	}
	return run, nil
}

// runStage invokes fn with timing and turns a returned error or a panic
// into a failed StageResult.
func runStage(ctx context.Context, name model.Stage, fn StageFunc) (res model.StageResult) {
	log := zap.L().With(zap.String("stage", string(name)))
	log.Info("runner: stage starting")
	start := time.Now()
	res.Name = name

	defer func() {
		if rec := recover(); rec != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", rec)
			log.Error("runner: stage panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
		res.Duration = time.Since(start)
		if res.Success {
			log.Info("runner: stage complete",
				zap.Duration("duration", res.Duration),
				zap.Int("processed", res.Stats.Processed),
				zap.Int("succeeded", res.Stats.Succeeded),
				zap.Int("failed", res.Stats.Failed),
				zap.Int("skipped", res.Stats.Skipped),
			)
		} else {
			log.Error("runner: stage failed", zap.Duration("duration", res.Duration), zap.String("error", res.Error))
		}
	}()

	rep, err := fn(ctx)
	if rep != nil {
		res.Stats = rep.Stats
		res.Usage = rep.Usage
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// PrintSummary writes one row per stage to w.
func PrintSummary(w io.Writer, run *model.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tRESULT\tDURATION\tPROCESSED\tOK\tFAILED\tSKIPPED\tAI COST")
	for _, s := range run.Stages {
		result := "ok"
		if !s.Success {
			result = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\n",
			s.Name, result, s.Duration.Round(time.Millisecond),
			s.Stats.Processed, s.Stats.Succeeded, s.Stats.Failed, s.Stats.Skipped, s.Usage.Cost)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "runner: flush summary")
	}
	if run.Failed() {
		_, err := fmt.Fprintln(w, "\nOne or more stages failed.")
		return eris.Wrap(err, "runner: write summary")
	}
	_, err := fmt.Fprintln(w, "\nAll stages completed.")
	return eris.Wrap(err, "runner: write summary")
}
