package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// Ingest extracts, chunks and embeds one upload and adds it to the corpus.
// Re-uploading a name with identical content is a no-op; new content replaces
// the old chunks under the same document ID. On any failure the corpus is
// left exactly as it was.
func (s *Session) Ingest(ctx context.Context, up domain.Upload) (domain.IngestResult, error) {
	if err := s.checkOpen(); err != nil {
		return domain.IngestResult{}, err
	}
	name := strings.TrimSpace(up.Name)
	if name == "" {
		return domain.IngestResult{}, domain.InvalidInput("document name is empty")
	}
	if s.opts.MaxFileSize > 0 && int64(len(up.Data)) > s.opts.MaxFileSize {
		return domain.IngestResult{}, domain.NewExtractionError(name, up.Format,
			fmt.Sprintf("file is %d bytes, limit is %d", len(up.Data), s.opts.MaxFileSize), nil)
	}

	format := up.Format
	if format == "" {
		if f, ok := domain.FormatFromName(name); ok {
			format = f
		}
	}

	extracted, err := s.extractor.Extract(ctx, name, format, up.Data)
	if err != nil {
		s.logger.Warn("extraction failed", "document", name, "error", err)
		return domain.IngestResult{}, err
	}

	return s.ingest(ctx, name, format, extracted, contentHash(up.Data))
}

// IngestText adds already extracted text as a plain-text document.
func (s *Session) IngestText(ctx context.Context, name, text string) (domain.IngestResult, error) {
	if err := s.checkOpen(); err != nil {
		return domain.IngestResult{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.IngestResult{}, domain.InvalidInput("document name is empty")
	}
	if strings.TrimSpace(text) == "" {
		return domain.IngestResult{}, domain.InvalidInput("document %s has no text", name)
	}
	return s.ingest(ctx, name, domain.FormatText, domain.Extracted{Text: text}, contentHash([]byte(text)))
}

// IngestBatch ingests uploads one after another. A failing document is
// reported in its outcome and never stops the others.
func (s *Session) IngestBatch(ctx context.Context, uploads []domain.Upload) []domain.IngestOutcome {
	outcomes := make([]domain.IngestOutcome, len(uploads))
	for i, up := range uploads {
		outcomes[i].Name = up.Name
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Result, outcomes[i].Err = s.Ingest(ctx, up)
	}
	return outcomes
}

func (s *Session) ingest(ctx context.Context, name string, format domain.Format, extracted domain.Extracted, hash string) (domain.IngestResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return domain.IngestResult{}, domain.ErrSessionClosed
	}
	var existing *documentRecord
	if id, ok := s.byName[name]; ok {
		existing = s.docs[id]
	}
	s.mu.RUnlock()

	if existing != nil && existing.doc.ContentHash == hash {
		s.logger.Debug("document unchanged", "document", name, "id", existing.doc.ID)
		return domain.IngestResult{
			DocumentID: existing.doc.ID,
			Name:       name,
			Chunks:     existing.chunks,
			Unchanged:  true,
		}, nil
	}

	docID := uuid.NewString()
	if existing != nil {
		docID = existing.doc.ID
	}
	doc := domain.Document{
		ID:          docID,
		Name:        name,
		Format:      format,
		Text:        extracted.Text,
		PageOffsets: extracted.PageOffsets,
		ContentHash: hash,
		IngestedAt:  time.Now().UTC(),
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("failed to chunk %s: %w", name, err)
	}
	if len(chunks) == 0 {
		return domain.IngestResult{}, domain.NewExtractionError(name, format, "no extractable text", nil)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	start := time.Now()
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Error("embedding failed, document not added", "document", name, "chunks", len(chunks), "error", err)
		return domain.IngestResult{}, err
	}
	if len(vectors) != len(chunks) {
		return domain.IngestResult{}, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			domain.ErrEmbeddingUnavailable, len(vectors), len(chunks))
	}

	entries := make([]port.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = port.IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
	}
	if err := s.index.ReplaceDocument(docID, entries); err != nil {
		return domain.IngestResult{}, fmt.Errorf("failed to index %s: %w", name, err)
	}

	s.mu.Lock()
	if existing != nil {
		doc.IngestedAt = existing.doc.IngestedAt
	}
	s.docs[docID] = &documentRecord{doc: doc, chunks: len(chunks)}
	s.byName[name] = docID
	s.mu.Unlock()
	s.invalidate()

	s.logger.Info("ingested document",
		"document", name,
		"id", docID,
		"format", format,
		"chunks", len(chunks),
		"replaced", existing != nil,
		"embed_duration", time.Since(start))

	return domain.IngestResult{
		DocumentID: docID,
		Name:       name,
		Chunks:     len(chunks),
		Replaced:   existing != nil,
	}, nil
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IndexUseCase ingests every matching file under a directory into a session.
type IndexUseCase struct {
	session *Session
	walker  port.FileWalker
	reader  port.FileReader
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(session *Session, walker port.FileWalker, reader port.FileReader) *IndexUseCase {
	return &IndexUseCase{
		session: session,
		walker:  walker,
		reader:  reader,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed   int
	FilesReplaced  int
	FilesUnchanged int
	FilesFailed    int
	ChunksCreated  int
	Errors         []string
}

// Index ingests the files found under root. Per-file failures are collected
// in the result; only a walk failure or cancellation aborts the run. progress,
// when set, is called after each file.
func (u *IndexUseCase) Index(ctx context.Context, root string, progress func(done, total int)) (*IndexResult, error) {
	result := &IndexResult{}

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := u.indexFile(ctx, file)
		switch {
		case errors.Is(err, domain.ErrSessionClosed):
			return result, err
		case err != nil:
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.RelPath, err))
		case res.Unchanged:
			result.FilesUnchanged++
		default:
			result.FilesIndexed++
			if res.Replaced {
				result.FilesReplaced++
			}
			result.ChunksCreated += res.Chunks
		}

		if progress != nil {
			progress(i+1, len(files))
		}
	}

	return result, nil
}

// indexFile reads and ingests a single file.
func (u *IndexUseCase) indexFile(ctx context.Context, file port.FileInfo) (domain.IngestResult, error) {
	format, _ := domain.FormatFromName(file.Path)
	if max := u.session.opts.MaxFileSize; max > 0 && file.Size > max {
		return domain.IngestResult{}, domain.NewExtractionError(file.RelPath, format,
			fmt.Sprintf("file is %d bytes, limit is %d", file.Size, max), nil)
	}

	content, err := u.reader.ReadFile(file.Path)
	if err != nil {
		return domain.IngestResult{}, fmt.Errorf("failed to read file: %w", err)
	}

	return u.session.Ingest(ctx, domain.Upload{
		Name:   filepath.ToSlash(file.RelPath),
		Format: format,
		Data:   content,
	})
}
