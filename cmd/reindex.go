package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-intel/internal/embed"
)

var (
	reindexLimit   int
	reindexQuiet   bool
	reindexLexical bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex [company-id]",
	Short: "Embed companies whose description changed since their last embedding",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "reindex")
		if err != nil {
			return err
		}
		defer env.Close()

		if reindexLexical && env.Index != nil {
			n, err := env.Index.Rebuild(ctx, env.Store)
			if err != nil {
				return err
			}
			zap.L().Info("lexical index rebuilt", zap.Int("companies", n))
		}

		if len(args) == 1 {
			if err := env.Indexer.Reindex(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "reindexed %s\n", args[0])
			return nil
		}

		var progress embed.Progress
		if !reindexQuiet {
			var bar *progressbar.ProgressBar
			progress.Start = func(total int) {
				bar = progressbar.Default(int64(total), "embedding")
			}
			progress.Step = func(string, error) {
				_ = bar.Add(1)
			}
		}

		embedded, err := env.Indexer.BatchReindexProgress(ctx, reindexLimit, progress)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "embedded %d companies\n", embedded)
		return nil
	},
}

func init() {
	reindexCmd.Flags().IntVar(&reindexLimit, "limit", 1000, "max number of stale companies to embed")
	reindexCmd.Flags().BoolVar(&reindexQuiet, "quiet", false, "disable the progress bar")
	reindexCmd.Flags().BoolVar(&reindexLexical, "lexical", false, "also rebuild the bleve index (sqlite driver)")
	rootCmd.AddCommand(reindexCmd)
}
