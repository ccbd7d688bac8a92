package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docqa/internal/adapter/fs"
	"docqa/internal/usecase"
)

var indexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index [path...]",
	Short: "Ingest documents and report what was indexed",
	Long: `Extract, chunk and embed documents, then report per-file outcomes and
corpus statistics. Use it to check that a document set ingests cleanly before
asking questions about it.

Examples:
  docqa index ./handbook
  docqa index policy.pdf notes.md --json`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output corpus statistics as JSON")
}

func runIndex(cmd *cobra.Command, args []string) error {
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

	result, err := ingestPaths(cmd.Context(), session, pathsOrRoot(args), !indexJSON)
	if err != nil {
		return err
	}

	if indexJSON {
		return printJSON(session.CorpusStats())
	}
	renderIndexResult(os.Stdout, result)
	stats := session.CorpusStats()
	fmt.Printf("\nCorpus: %d documents, %d chunks\n", stats.DocumentCount, stats.ChunkCount)
	return nil
}

func pathsOrRoot(args []string) []string {
	if len(args) == 0 {
		return []string{GetRootDir()}
	}
	return args
}

// ingestPaths ingests every path (file or directory) into session.
func ingestPaths(ctx context.Context, session *usecase.Session, paths []string, showProgress bool) (*usecase.IndexResult, error) {
	cfg := GetConfig()
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	indexUC := usecase.NewIndexUseCase(session, walker, fs.Reader{})

	total := &usecase.IndexResult{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("path does not exist: %w", err)
		}

		var progress func(done, total int)
		if showProgress {
			progress = newProgress(filepath.Base(abs))
		}

		result, err := indexUC.Index(ctx, abs, progress)
		if err != nil {
			return nil, fmt.Errorf("ingestion failed: %w", err)
		}
		total.FilesIndexed += result.FilesIndexed
		total.FilesReplaced += result.FilesReplaced
		total.FilesUnchanged += result.FilesUnchanged
		total.FilesFailed += result.FilesFailed
		total.ChunksCreated += result.ChunksCreated
		total.Errors = append(total.Errors, result.Errors...)
	}
	return total, nil
}

// newProgress returns a progress callback that draws a bar on stderr once the
// file count is known.
func newProgress(label string) func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		barMu     sync.Mutex
		startTime time.Time
	)

	return func(processed, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting "+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 && processed < total {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-processed)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting %s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
