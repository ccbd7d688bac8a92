package extract

import (
	"context"
	"log/slog"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
)

// Extractor dispatches uploads to the reader for their format.
type Extractor struct {
	logger *slog.Logger
}

var _ port.Extractor = (*Extractor)(nil)

func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logging.OrDiscard(logger)}
}

// Extract returns the plain text of an upload. Every failure is an
// *domain.ExtractionError and is never worth retrying.
func (e *Extractor) Extract(ctx context.Context, name string, format domain.Format, data []byte) (domain.Extracted, error) {
	if format == "" {
		f, ok := domain.FormatFromName(name)
		if !ok {
			return domain.Extracted{}, domain.NewExtractionError(name, "", "unsupported format", nil)
		}
		format = f
	}

	var (
		out domain.Extracted
		err error
	)
	switch format {
	case domain.FormatText:
		out, err = extractText(name, data)
	case domain.FormatPDF:
		out, err = extractPDF(ctx, name, data)
	case domain.FormatDOCX:
		out, err = extractDOCX(name, data)
	default:
		return domain.Extracted{}, domain.NewExtractionError(name, format, "unsupported format", nil)
	}
	if err != nil {
		return domain.Extracted{}, err
	}

	e.logger.Debug("extracted document",
		"name", name, "format", format,
		"bytes", len(data), "characters", len([]rune(out.Text)), "pages", len(out.PageOffsets))
	return out, nil
}
