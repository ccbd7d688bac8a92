package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// boundaryTiers lists cut points from most to least preferred. A cut is made
// immediately after the separator so that it stays with the preceding text.
var boundaryTiers = runeTiers([][]string{
	{"\n\n"},
	{"\n"},
	{". ", "? ", "! ", "。"},
	{" ", "\t"},
})

func runeTiers(tiers [][]string) [][][]rune {
	out := make([][][]rune, len(tiers))
	for i, tier := range tiers {
		for _, sep := range tier {
			out[i] = append(out[i], []rune(sep))
		}
	}
	return out
}

// RecursiveChunker cuts text into windows of at most maxSize runes, each
// sharing exactly overlap runes with the next, preferring paragraph, then
// line, then sentence, then word boundaries before falling back to a hard cut.
type RecursiveChunker struct {
	maxSize int
	overlap int
}

var _ port.Chunker = (*RecursiveChunker)(nil)

func NewRecursiveChunker(maxSize, overlap int) (*RecursiveChunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", domain.ErrConfiguration, overlap, maxSize)
	}
	return &RecursiveChunker{maxSize: maxSize, overlap: overlap}, nil
}

func (c *RecursiveChunker) MaxSize() int { return c.maxSize }
func (c *RecursiveChunker) Overlap() int { return c.overlap }

func (c *RecursiveChunker) Chunk(doc domain.Document) ([]domain.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, nil
	}

	text := []rune(doc.Text)
	n := len(text)

	// A boundary closer than this to the window start is ignored so every
	// chunk advances past the overlap and stays reasonably full.
	minAdvance := c.overlap + 1
	if q := c.maxSize / 4; q > minAdvance {
		minAdvance = q
	}

	var chunks []domain.Chunk
	start := 0
	for {
		end := start + c.maxSize
		if end >= n {
			end = n
		} else if cut := findBoundary(text, start, start+minAdvance, end); cut > 0 {
			end = cut
		}

		chunks = append(chunks, domain.Chunk{
			ID:           generateChunkID(doc.ID, start, end),
			DocumentID:   doc.ID,
			DocumentName: doc.Name,
			Index:        len(chunks),
			Text:         string(text[start:end]),
			Start:        start,
			End:          end,
			Page:         doc.PageAt(start),
		})

		if end == n {
			break
		}
		start = end - c.overlap
	}

	return chunks, nil
}

// findBoundary returns the latest cut position in [lo, hi] that follows a
// separator of the most preferred tier present, or 0 if none is found.
func findBoundary(text []rune, start, lo, hi int) int {
	if lo > hi {
		return 0
	}
	for _, tier := range boundaryTiers {
		for p := hi; p >= lo; p-- {
			for _, sep := range tier {
				if endsWith(text, start, p, sep) {
					return p
				}
			}
		}
	}
	return 0
}

func endsWith(text []rune, start, p int, sep []rune) bool {
	if p-len(sep) < start {
		return false
	}
	for i, r := range sep {
		if text[p-len(sep)+i] != r {
			return false
		}
	}
	return true
}

func generateChunkID(docID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// Reconstruct rebuilds the source text from consecutive chunks by dropping
// each chunk's overlap with its predecessor.
func Reconstruct(chunks []domain.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for i, ch := range chunks {
		runes := []rune(ch.Text)
		skip := 0
		if i > 0 {
			skip = prevEnd - ch.Start
		}
		b.WriteString(string(runes[skip:]))
		prevEnd = ch.End
	}
	return b.String()
}
