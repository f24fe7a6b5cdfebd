package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mealingabout/menu-pipeline/internal/model"
	"github.com/mealingabout/menu-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all five stages once",
	Long:  "Runs discover, enrich, find-menus, extract and analyze in order. Every stage runs even when an earlier one fails; the exit code is non-zero if any stage failed.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStages(cmd, model.AllStages())
	},
}

// runStages wires the pipeline, runs the given stages and turns a failed
// run into a non-zero exit.
func runStages(cmd *cobra.Command, stages []model.Stage) error {
	ctx := cmd.Context()

	env, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	runner := pipeline.NewRunner(env.Pipeline, env.Store, cmd.OutOrStdout())
	run, err := runner.Run(ctx, stages)
	if err != nil {
		return err
	}
	if run.Failed() {
		return eris.Errorf("run %s: one or more stages failed", run.ID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(runCmd)
}
