package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	promptQuestion string
	promptTopK     int
	promptJSON     bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt [path...]",
	Short: "Print the prompt a question would be answered with",
	Long: `Ingest documents, retrieve passages for a question and print the exact
prompt that would be sent to the generator, without calling it.

Use this to feed the prompt to an LLM by hand or to inspect how the token
budget trims context.

Examples:
  docqa prompt ./handbook -q "Who approves travel?"
  docqa prompt report.pdf -q "Summarise the findings" --json`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuestion, "question", "q", "", "question to build the prompt for (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "passages to retrieve (default from config)")
	promptCmd.Flags().BoolVar(&promptJSON, "json", false, "output the generation request as JSON")
	promptCmd.MarkFlagRequired("question")
}

func runPrompt(cmd *cobra.Command, args []string) error {
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

	if _, err := ingestPaths(cmd.Context(), session, pathsOrRoot(args), false); err != nil {
		return err
	}

	p, err := session.Prompt(cmd.Context(), promptQuestion, promptTopK)
	if err != nil {
		return err
	}

	if promptJSON {
		return printJSON(map[string]any{
			"system":   p.Request.System,
			"prompt":   p.Request.Prompt,
			"tokens":   p.Tokens,
			"included": len(p.Included),
			"dropped":  p.Dropped,
			"degraded": p.Degraded,
		})
	}

	fmt.Println(p.Request.Prompt)
	st := styles()
	fmt.Fprintln(os.Stderr, st.Muted.Render(fmt.Sprintf("%d tokens, %d passages included, %d dropped",
		p.Tokens, len(p.Included), p.Dropped)))
	if p.Degraded {
		fmt.Fprintln(os.Stderr, st.Warning.Render("top passage truncated to fit the prompt budget"))
	}
	return nil
}
