package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// Format identifies the source format of an uploaded document.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatText Format = "txt"
	FormatDOCX Format = "docx"
)

// FormatFromName infers the document format from a file name extension.
// Markdown is read as plain text.
func FormatFromName(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF, true
	case ".txt", ".text", ".md", ".markdown":
		return FormatText, true
	case ".docx":
		return FormatDOCX, true
	default:
		return "", false
	}
}

// Upload is a raw document handed to the ingestion pipeline.
type Upload struct {
	Name   string
	Format Format
	Data   []byte
}

// Extracted is the plain text recovered from an upload.
// PageOffsets holds the rune offset at which each page starts, when known.
type Extracted struct {
	Text        string
	PageOffsets []int
}

// Document is an extracted source document. It is never mutated after ingestion.
type Document struct {
	ID          string
	Name        string
	Format      Format
	Text        string
	PageOffsets []int
	ContentHash string
	IngestedAt  time.Time
}

// PageAt returns the 1-based page containing the rune offset, or 0 when unknown.
func (d Document) PageAt(offset int) int {
	if len(d.PageOffsets) == 0 {
		return 0
	}
	page := 0
	for i, start := range d.PageOffsets {
		if start > offset {
			break
		}
		page = i + 1
	}
	return page
}

// Chunk is a contiguous slice of a document's text. Start and End are rune
// offsets into Document.Text, End exclusive.
type Chunk struct {
	ID           string
	DocumentID   string
	DocumentName string
	Index        int
	Text         string
	Start        int
	End          int
	Page         int
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// ScoredChunk is a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Citation links an answer back to the chunk it drew on.
type Citation struct {
	Marker       int     `json:"marker"`
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	Page         int     `json:"page,omitempty"`
	Score        float64 `json:"score"`
	Excerpt      string  `json:"excerpt"`
}

// Answer is the composed response to a question.
//
// Grounded is false when no passages backed the answer. Degraded is set when
// context had to be truncated to fit the prompt budget. ExplicitCitations is
// false when the model emitted no citation markers and every included chunk is
// reported as a candidate source.
type Answer struct {
	Question          string     `json:"question"`
	Text              string     `json:"text"`
	Citations         []Citation `json:"citations"`
	Grounded          bool       `json:"grounded"`
	Degraded          bool       `json:"degraded"`
	ExplicitCitations bool       `json:"explicit_citations"`
}

// DocumentInfo summarises one ingested document.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Format     Format    `json:"format"`
	Chunks     int       `json:"chunks"`
	Characters int       `json:"characters"`
	IngestedAt time.Time `json:"ingested_at"`
}

// CorpusStats holds corpus-level statistics.
type CorpusStats struct {
	DocumentCount int            `json:"document_count"`
	ChunkCount    int            `json:"chunk_count"`
	Documents     []DocumentInfo `json:"documents"`
}

// IngestResult reports what happened to one upload.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
	Replaced   bool   `json:"replaced"`
	Unchanged  bool   `json:"unchanged"`
}

// IngestOutcome pairs an upload name with its result or failure.
type IngestOutcome struct {
	Name   string
	Result IngestResult
	Err    error
}
