package port

import (
	"context"

	"docqa/internal/domain"
)

// Extractor recovers plain text from an uploaded document.
type Extractor interface {
	Extract(ctx context.Context, name string, format domain.Format, data []byte) (domain.Extracted, error)
}
