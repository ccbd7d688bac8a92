package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docqa/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [path...]",
	Short: "Show the passages retrieved for a query",
	Long: `Ingest documents and list the chunks most similar to a query, without
generating an answer.

Examples:
  docqa query ./handbook -q "expense approval"
  docqa query policy.pdf -q "parking" --top-k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.NewSession()
	if err != nil {
		return err
	}
	defer session.Destroy()

	if _, err := ingestPaths(cmd.Context(), session, pathsOrRoot(args), !queryJSON); err != nil {
		return err
	}

	chunks, err := session.Retrieve(cmd.Context(), queryText, queryTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	results := usecase.ToResults(chunks)

	if queryJSON {
		return printJSON(results)
	}
	renderResults(os.Stdout, queryText, results)
	return nil
}
