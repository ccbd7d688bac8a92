package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

var (
	askQuestion string
	askTopK     int
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [path...]",
	Short: "Answer questions about documents with citations",
	Long: `Ingest documents and answer a question from them. Without -q, questions
are read from stdin one per line against the same corpus.

Examples:
  docqa ask ./handbook -q "Who approves travel?"
  docqa ask contract.pdf --top-k 8
  echo "What is the notice period?" | docqa ask contract.docx --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuestion, "question", "q", "", "question to answer (default: read from stdin)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "passages to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output answers as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	result, err := ingestPaths(cmd.Context(), session, pathsOrRoot(args), !askJSON)
	if err != nil {
		return err
	}
	if !askJSON && result.FilesFailed > 0 {
		for _, e := range result.Errors {
			fmt.Fprintln(os.Stderr, styles().Warning.Render("skipped "+e))
		}
	}

	if askQuestion != "" {
		return answer(cmd, session, askQuestion)
	}

	interactive := isTerminal(os.Stdin)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if interactive {
			fmt.Fprint(os.Stderr, styles().Marker.Render("? "))
		}
		if !scanner.Scan() {
			break
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		if err := answer(cmd, session, q); err != nil {
			// A failed question does not end the session.
			if errors.Is(err, domain.ErrSessionClosed) || cmd.Context().Err() != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, styles().Error.Render("Error: "+err.Error()))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func answer(cmd *cobra.Command, session *usecase.Session, question string) error {
	a, err := session.Ask(cmd.Context(), question, askTopK)
	if err != nil {
		return err
	}
	if askJSON {
		return printJSON(a)
	}
	renderAnswer(os.Stdout, a)
	fmt.Println()
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
