package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"docqa/internal/domain"
)

func extractPDF(ctx context.Context, name string, data []byte) (out domain.Extracted, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			out = domain.Extracted{}
			err = domain.NewExtractionError(name, domain.FormatPDF, "corrupt file", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatPDF, "password-protected", err)
		}
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatPDF, "corrupt file", err)
	}

	pages := make([]string, r.NumPage())
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return domain.Extracted{}, err
		}
		page := r.Page(i + 1)
		// A page without a dictionary still occupies its page number.
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatPDF, fmt.Sprintf("unreadable page %d", i+1), err)
		}
		pages[i] = text
	}

	text, offsets := joinPages(pages)
	if strings.TrimSpace(text) == "" {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatPDF, "no extractable text (scanned or image-only)", nil)
	}
	return domain.Extracted{Text: text, PageOffsets: offsets}, nil
}

// joinPages concatenates page texts with blank lines and returns the rune
// offset where each page starts. Empty pages keep an offset so page numbers
// stay aligned with the source document.
func joinPages(pages []string) (string, []int) {
	var (
		b       strings.Builder
		offsets = make([]int, 0, len(pages))
		runes   int
	)
	for _, text := range pages {
		text = strings.TrimSpace(text)
		if text != "" && b.Len() > 0 {
			b.WriteString("\n\n")
			runes += 2
		}
		offsets = append(offsets, runes)
		b.WriteString(text)
		runes += utf8.RuneCountInString(text)
	}
	return b.String(), offsets
}
