package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docqa/config"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/extract"
	"docqa/internal/domain"
)

var chunkJSON bool

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Preview how a document is split into chunks",
	Long: `Extract a single document and print its chunks with their character
ranges, using the chunking settings from the config. The preview also checks
that the chunks rebuild the extracted text exactly.

Examples:
  docqa chunk handbook.pdf
  docqa chunk notes.md --json`,
	Args: cobra.ExactArgs(1),
	RunE: runChunk,
}

type chunkPreview struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Page  int    `json:"page,omitempty"`
	Runes int    `json:"runes"`
	Text  string `json:"text"`
}

type chunkReport struct {
	Document string         `json:"document"`
	MaxSize  int            `json:"max_chunk_size"`
	Overlap  int            `json:"chunk_overlap"`
	Lossless bool           `json:"lossless"`
	Chunks   []chunkPreview `json:"chunks"`
}

func init() {
	rootCmd.AddCommand(chunkCmd)
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "output as JSON")
}

func runChunk(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if max := cfg.MaxFileSize(); int64(len(data)) > max {
		return fmt.Errorf("%s is %d bytes, limit is %d", path, len(data), max)
	}

	report, err := buildChunkReport(cmd.Context(), cfg, filepath.Base(path), data)
	if err != nil {
		return err
	}
	if chunkJSON {
		return printJSON(report)
	}

	st := styles()
	fmt.Println(st.Title.Render(fmt.Sprintf("%s: %d chunks (size %d, overlap %d)",
		report.Document, len(report.Chunks), report.MaxSize, report.Overlap)))
	for _, p := range report.Chunks {
		loc := fmt.Sprintf("chars %d-%d", p.Start, p.End)
		if p.Page > 0 {
			loc += fmt.Sprintf(", page %d", p.Page)
		}
		fmt.Printf("%s %s\n", st.Marker.Render(fmt.Sprintf("#%d", p.Index)), st.Muted.Render(loc))
		fmt.Println("  " + oneLine(p.Text, 120))
	}
	if !report.Lossless {
		fmt.Fprintln(os.Stderr, st.Warning.Render("chunks do not rebuild the extracted text"))
	}
	return nil
}

// buildChunkReport extracts and chunks one document with the configured
// chunking settings.
func buildChunkReport(ctx context.Context, cfg *config.Config, name string, data []byte) (*chunkReport, error) {
	format, ok := domain.FormatFromName(name)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported document format", name)
	}
	extracted, err := extract.New(nil).Extract(ctx, name, format, data)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.NewRecursiveChunker(cfg.Chunking.MaxChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks, err := ch.Chunk(domain.Document{
		ID:          name,
		Name:        name,
		Format:      format,
		Text:        extracted.Text,
		PageOffsets: extracted.PageOffsets,
	})
	if err != nil {
		return nil, err
	}

	report := &chunkReport{
		Document: name,
		MaxSize:  ch.MaxSize(),
		Overlap:  ch.Overlap(),
		Lossless: chunker.Reconstruct(chunks) == extracted.Text,
		Chunks:   make([]chunkPreview, len(chunks)),
	}
	for i, c := range chunks {
		report.Chunks[i] = chunkPreview{
			Index: c.Index,
			Start: c.Start,
			End:   c.End,
			Page:  c.Page,
			Runes: c.Len(),
			Text:  c.Text,
		}
	}
	return report, nil
}
