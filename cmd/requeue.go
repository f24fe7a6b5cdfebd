package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

// requeueTargets maps a requeue argument to its status move.
var requeueTargets = map[string]struct{ from, to model.AnalysisStatus }{
	"failed":   {model.StatusFailed, model.StatusPending},
	"analyzed": {model.StatusAnalyzed, model.StatusExtracted},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <failed|analyzed>",
	Short: "Move records back into the pipeline",
	Long: `Requeues records for another pass:
  failed    failed -> pending, retried from enrich onwards
  analyzed  analyzed -> extracted, re-analyzed from the stored raw text`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"failed", "analyzed"},
	RunE: func(cmd *cobra.Command, args []string) error {
		move, ok := requeueTargets[args[0]]
		if !ok {
			return eris.Errorf("unknown requeue target %q (want failed or analyzed)", args[0])
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := migrateStore(ctx, st); err != nil {
			return err
		}

		n, err := st.RequeueStatus(ctx, move.from, move.to)
		if err != nil {
			return err
		}
		zap.L().Info("requeued restaurants",
			zap.String("from", string(move.from)),
			zap.String("to", string(move.to)),
			zap.Int("count", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d restaurants (%s -> %s)\n", n, move.from, move.to)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}
