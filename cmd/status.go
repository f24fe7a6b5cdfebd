package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mealingabout/menu-pipeline/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show restaurant counts per analysis status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := migrateStore(ctx, st); err != nil {
			return err
		}

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return err
		}
		return printStatusCounts(cmd.OutOrStdout(), counts)
	},
}

// printStatusCounts lists every status in lifecycle order, zeros included.
func printStatusCounts(w io.Writer, counts map[model.AnalysisStatus]int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tRESTAURANTS")
	total := 0
	for _, s := range model.AllStatuses() {
		fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return eris.Wrap(tw.Flush(), "flush status table")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
