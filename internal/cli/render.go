package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/usecase"
)

// Styles holds the terminal styles used by command output.
type Styles struct {
	Title   lipgloss.Style
	Answer  lipgloss.Style
	Marker  lipgloss.Style
	Source  lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
}

var (
	stylesOnce sync.Once
	cliStyles  *Styles
)

func styles() *Styles {
	stylesOnce.Do(func() {
		cliStyles = &Styles{
			Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
			Answer:  lipgloss.NewStyle().PaddingLeft(2).Width(100),
			Marker:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
			Source:  lipgloss.NewStyle().Foreground(lipgloss.Color("#CDD6F4")),
			Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")),
			Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
			Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F38BA8")),
			Success: lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		}
	})
	return cliStyles
}

func renderAnswer(w io.Writer, a domain.Answer) {
	st := styles()
	fmt.Fprintln(w, st.Title.Render("Answer"))
	fmt.Fprintln(w, st.Answer.Render(a.Text))

	if a.Degraded {
		fmt.Fprintln(w, st.Warning.Render("  note: the top passage was truncated to fit the prompt budget"))
	}
	if !a.Grounded {
		fmt.Fprintln(w, st.Muted.Render("  not grounded in the ingested documents"))
		return
	}
	if len(a.Citations) == 0 {
		return
	}

	fmt.Fprintln(w)
	title := "Sources"
	if !a.ExplicitCitations {
		title = "Candidate sources"
	}
	fmt.Fprintln(w, st.Title.Render(title))
	for _, c := range a.Citations {
		loc := fmt.Sprintf("chars %d-%d", c.Start, c.End)
		if c.Page > 0 {
			loc = fmt.Sprintf("page %d, %s", c.Page, loc)
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			st.Marker.Render(fmt.Sprintf("[%d]", c.Marker)),
			st.Source.Render(c.DocumentName),
			st.Muted.Render(fmt.Sprintf("(%s, score %.3f)", loc, c.Score)))
		fmt.Fprintln(w, st.Muted.Render("      "+oneLine(c.Excerpt, 160)))
	}
}

func renderResults(w io.Writer, query string, results []usecase.ScoredChunkResult) {
	st := styles()
	if len(results) == 0 {
		fmt.Fprintln(w, st.Muted.Render("No results found."))
		return
	}
	fmt.Fprintln(w, st.Title.Render(fmt.Sprintf("Found %d results for: %s", len(results), query)))
	fmt.Fprintln(w)
	for i, r := range results {
		header := fmt.Sprintf("--- [%d] %s chars %d-%d (score: %.3f) ---", i+1, r.Document, r.Start, r.End, r.Score)
		fmt.Fprintln(w, st.Marker.Render(header))
		text := r.Text
		if runes := []rune(text); len(runes) > 500 {
			text = string(runes[:500]) + "..."
		}
		fmt.Fprintln(w, text)
		fmt.Fprintln(w)
	}
}

func renderIndexResult(w io.Writer, r *usecase.IndexResult) {
	st := styles()
	fmt.Fprintln(w, st.Success.Render("Ingestion complete:"))
	fmt.Fprintf(w, "  Files ingested:  %d (%d replaced)\n", r.FilesIndexed, r.FilesReplaced)
	fmt.Fprintf(w, "  Files unchanged: %d\n", r.FilesUnchanged)
	fmt.Fprintf(w, "  Files failed:    %d\n", r.FilesFailed)
	fmt.Fprintf(w, "  Chunks created:  %d\n", r.ChunksCreated)
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, st.Warning.Render("\nSkipped documents:"))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
