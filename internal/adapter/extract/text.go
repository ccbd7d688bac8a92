package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func extractText(name string, data []byte) (domain.Extracted, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatText, "unsupported encoding, expected UTF-8", nil)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatText, "binary content", nil)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return domain.Extracted{Text: text}, nil
}
