package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/model"
	"github.com/sells-group/company-intel/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List enrichment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := env.Orchestrator.Runs(ctx, store.RunFilter{Status: model.RunStatus(status), Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsResetCmd = &cobra.Command{
	Use:   "reset <company-id>",
	Short: "Move a failed run back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Orchestrator.ResetFailed(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, run)
	},
}

func init() {
	runsCmd.Flags().String("status", "", "filter by run status (pending, in_progress, enriched, failed)")
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsResetCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.EnrichmentRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPANY\tSTATUS\tATTEMPTS\tRETRYABLE\tSTARTED\tDURATION\tREASON")
	_, _ = fmt.Fprintln(w, "-------\t------\t--------\t---------\t-------\t--------\t------")

	for _, r := range runs {
		started, dur := "", ""
		if r.StartedAt != nil {
			started = r.StartedAt.Format("2006-01-02 15:04")
			if r.FinishedAt != nil {
				dur = r.FinishedAt.Sub(*r.StartedAt).Round(time.Millisecond).String()
			}
		}
		reason := r.FailedReason
		if len(reason) > 60 {
			reason = reason[:57] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
			r.CompanyID,
			r.Status,
			r.Attempts,
			r.Retryable,
			started,
			dur,
			reason,
		)
	}
	_ = w.Flush()
}
