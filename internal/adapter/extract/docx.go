package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"docqa/internal/domain"
)

const documentPart = "word/document.xml"

// extractDOCX reads the main document part of a Word file. Paragraphs,
// including those nested in tables, become lines; tabs and breaks are kept.
func extractDOCX(name string, data []byte) (domain.Extracted, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Encrypted Word files are OLE containers, not zip archives.
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatDOCX, "corrupt or password-protected file", err)
	}

	var part *zip.File
	for _, f := range reader.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatDOCX, "missing "+documentPart, nil)
	}

	rc, err := part.Open()
	if err != nil {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatDOCX, "corrupt file", err)
	}
	defer rc.Close()

	text, err := parseDocumentXML(rc)
	if err != nil {
		return domain.Extracted{}, domain.NewExtractionError(name, domain.FormatDOCX, "malformed document.xml", err)
	}
	return domain.Extracted{Text: text}, nil
}

func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var (
		b      strings.Builder
		para   strings.Builder
		inText bool
		paras  []string
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paras = append(paras, strings.TrimRight(para.String(), " \t"))
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	for i, p := range paras {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p)
	}
	return strings.TrimSpace(b.String()), nil
}
