package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

var stageCmd = &cobra.Command{
	Use:       "stage <name>",
	Short:     "Run a single pipeline stage",
	Long:      "Runs one of discover, enrich, find-menus, extract or analyze over its current batch.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: stageNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := model.ParseStage(args[0])
		if !ok {
			return eris.Errorf("unknown stage %q (want one of %v)", args[0], stageNames())
		}
		return runStages(cmd, []model.Stage{s})
	},
}

func stageNames() []string {
	stages := model.AllStages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return names
}

func init() {
	rootCmd.AddCommand(stageCmd)
}
