package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <company-id>...",
	Short: "Enrich one or more companies from the provider chain",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		if len(args) == 1 {
			out, err := env.Orchestrator.EnrichOne(ctx, args[0])
			if out != nil {
				if perr := printJSON(os.Stdout, out); perr != nil {
					return perr
				}
			}
			return err
		}
		return printJSON(os.Stdout, env.Orchestrator.EnrichBatch(ctx, args))
	},
}

var autoEnrichLimit int

var autoEnrichCmd = &cobra.Command{
	Use:   "auto-enrich",
	Short: "Enrich the stalest companies below the quality threshold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes, err := env.Orchestrator.AutoEnrich(ctx, autoEnrichLimit)
		if err != nil {
			return err
		}
		zap.L().Info("auto-enrich complete", zap.Int("companies", len(outcomes)))
		return printJSON(os.Stdout, outcomes)
	},
}

func init() {
	autoEnrichCmd.Flags().IntVar(&autoEnrichLimit, "limit", 25, "max number of candidates to enrich")
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(autoEnrichCmd)
}
