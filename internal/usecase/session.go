package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/retriever"
	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
)

// Deps are the collaborators a session is built from.
type Deps struct {
	Extractor port.Extractor
	Chunker   port.Chunker
	Embedder  port.Embedder
	Index     port.VectorIndex
	Composer  *Composer
	Logger    *slog.Logger
}

// SessionOptions holds per-session settings taken from the config.
type SessionOptions struct {
	DefaultTopK        int
	RelevanceThreshold *float64
	MaxFileSize        int64 // 0 = unlimited
	QueryCacheSize     int   // 0 disables the query cache
	QueryCacheTTL      time.Duration
}

type documentRecord struct {
	doc    domain.Document
	chunks int
}

// Session owns one corpus: its documents, their chunks and the vector index.
// Ingestion is serialised; questions run concurrently with it and only ever
// see fully written documents.
type Session struct {
	id        string
	createdAt time.Time

	extractor port.Extractor
	chunker   port.Chunker
	embedder  port.Embedder
	index     port.VectorIndex
	composer  *Composer
	retrieve  *RetrieveUseCase
	cache     *cache.QueryCache
	opts      SessionOptions
	logger    *slog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	docs   map[string]*documentRecord
	byName map[string]string
	closed bool
}

// NewSession creates an empty session.
func NewSession(deps Deps, opts SessionOptions) (*Session, error) {
	switch {
	case deps.Extractor == nil, deps.Chunker == nil, deps.Embedder == nil,
		deps.Index == nil, deps.Composer == nil:
		return nil, fmt.Errorf("%w: session requires extractor, chunker, embedder, index and composer", domain.ErrConfiguration)
	case deps.Embedder.Dimension() != deps.Index.Dimension():
		return nil, fmt.Errorf("%w: embedder dimension %d does not match index dimension %d",
			domain.ErrConfiguration, deps.Embedder.Dimension(), deps.Index.Dimension())
	case opts.DefaultTopK <= 0:
		return nil, fmt.Errorf("%w: default top_k must be positive, got %d", domain.ErrConfiguration, opts.DefaultTopK)
	}

	id := uuid.NewString()
	logger := logging.OrDiscard(deps.Logger).With("session", id)

	var r port.Retriever = retriever.NewSemanticRetriever(deps.Index, deps.Embedder)
	var qc *cache.QueryCache
	if opts.QueryCacheSize > 0 {
		qc = cache.NewQueryCache(opts.QueryCacheSize, opts.QueryCacheTTL)
		r = cache.NewCachedRetriever(r, qc)
	}

	return &Session{
		id:        id,
		createdAt: time.Now().UTC(),
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		index:     deps.Index,
		composer:  deps.Composer,
		retrieve:  NewRetrieveUseCase(r, opts.RelevanceThreshold),
		cache:     qc,
		opts:      opts,
		logger:    logger,
		docs:      make(map[string]*documentRecord),
		byName:    make(map[string]string),
	}, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	return nil
}

// Ask answers a question from the corpus. topK 0 uses the session default.
// An empty corpus yields the no-grounding answer without embedding anything.
func (s *Session) Ask(ctx context.Context, question string, topK int) (domain.Answer, error) {
	if err := s.checkOpen(); err != nil {
		return domain.Answer{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, domain.InvalidInput("question is empty")
	}
	if topK < 0 {
		return domain.Answer{}, domain.InvalidInput("top_k must not be negative, got %d", topK)
	}
	if topK == 0 {
		topK = s.opts.DefaultTopK
	}

	start := time.Now()
	var chunks []domain.ScoredChunk
	if s.index.Len() > 0 {
		var err error
		chunks, err = s.retrieve.Retrieve(ctx, question, topK)
		if err != nil {
			return domain.Answer{}, err
		}
	}

	answer, err := s.composer.Compose(ctx, question, chunks)
	if err != nil {
		return domain.Answer{}, err
	}

	s.logger.Info("answered question",
		"top_k", topK,
		"retrieved", len(chunks),
		"citations", len(answer.Citations),
		"grounded", answer.Grounded,
		"degraded", answer.Degraded,
		"duration", time.Since(start))
	return answer, nil
}

// Retrieve returns the chunks a question would be answered from.
func (s *Session) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if topK == 0 {
		topK = s.opts.DefaultTopK
	}
	return s.retrieve.Retrieve(ctx, query, topK)
}

// Prompt assembles the prompt a question would be sent with, without calling
// the generator.
func (s *Session) Prompt(ctx context.Context, question string, topK int) (Prompt, error) {
	chunks, err := s.Retrieve(ctx, question, topK)
	if err != nil {
		return Prompt{}, err
	}
	return s.composer.BuildPrompt(question, chunks)
}

// Document returns an ingested document by ID.
func (s *Session) Document(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.Document{}, domain.ErrSessionClosed
	}
	rec, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return rec.doc, nil
}

// Documents lists ingested documents in ingestion order.
func (s *Session) Documents() []domain.DocumentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DocumentInfo, 0, len(s.docs))
	for _, rec := range s.docs {
		out = append(out, domain.DocumentInfo{
			ID:         rec.doc.ID,
			Name:       rec.doc.Name,
			Format:     rec.doc.Format,
			Chunks:     rec.chunks,
			Characters: len([]rune(rec.doc.Text)),
			IngestedAt: rec.doc.IngestedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IngestedAt.Equal(out[j].IngestedAt) {
			return out[i].IngestedAt.Before(out[j].IngestedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CorpusStats reports document and chunk counts.
func (s *Session) CorpusStats() domain.CorpusStats {
	docs := s.Documents()
	return domain.CorpusStats{
		DocumentCount: len(docs),
		ChunkCount:    s.index.Len(),
		Documents:     docs,
	}
}

// RemoveDocument deletes a document and all of its chunks.
func (s *Session) RemoveDocument(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	rec, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	delete(s.docs, id)
	delete(s.byName, rec.doc.Name)
	s.mu.Unlock()

	removed := s.index.RemoveDocument(id)
	s.invalidate()
	s.logger.Info("removed document", "document", rec.doc.Name, "id", id, "chunks", removed)
	return nil
}

// ClearCorpus drops every document and resets the index. The session stays usable.
func (s *Session) ClearCorpus() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	n := len(s.docs)
	s.docs = make(map[string]*documentRecord)
	s.byName = make(map[string]string)
	s.mu.Unlock()

	s.index.Clear()
	s.invalidate()
	s.logger.Info("cleared corpus", "documents", n)
	return nil
}

// Destroy releases the corpus. Every later call returns ErrSessionClosed.
func (s *Session) Destroy() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.docs = nil
	s.byName = nil
	s.mu.Unlock()

	s.index.Clear()
	s.invalidate()
	s.logger.Info("destroyed session")
}

func (s *Session) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}
