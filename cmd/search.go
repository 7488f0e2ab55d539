package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/company-intel/internal/model"
)

var (
	searchLimit   int
	searchAccount string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank companies for a free-text query and store the request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		req, results, err := env.Search.Run(ctx, searchAccount, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		return printSearch(os.Stdout, req, results, searchJSON)
	},
}

var searchReplayCmd = &cobra.Command{
	Use:   "search-replay <search-id>",
	Short: "Show a stored search request and its ranked results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		req, results, err := env.Search.Replay(ctx, args[0])
		if err != nil {
			return err
		}
		return printSearch(os.Stdout, req, results, searchJSON)
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "max number of results")
	searchCmd.Flags().StringVar(&searchAccount, "account", "", "account id recorded on the request")
	for _, c := range []*cobra.Command{searchCmd, searchReplayCmd} {
		c.Flags().BoolVar(&searchJSON, "json", false, "print JSON instead of a table")
		rootCmd.AddCommand(c)
	}
}

// printSearch writes a request and its results as JSON or a table.
func printSearch(out io.Writer, req *model.SearchRequest, results []model.SearchResult, asJSON bool) error {
	if asJSON {
		return printJSON(out, searchResponse{Request: req, Results: results})
	}

	_, _ = fmt.Fprintf(out, "search %s (%s): %q\n", req.ID, req.Status, req.Query)
	if req.Error != "" {
		_, _ = fmt.Fprintf(out, "error: %s\n", req.Error)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tCOMPANY\tSCORE\tSOURCE")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\n", r.Rank, r.CompanyID, r.Score, r.Source)
	}
	return w.Flush()
}
