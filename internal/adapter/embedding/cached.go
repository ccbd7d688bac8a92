package embedding

import (
	"context"
	"log/slog"

	"docqa/internal/logging"
	"docqa/internal/port"
)

// VectorCache stores vectors by model and exact text.
type VectorCache interface {
	GetMany(model string, texts []string) (map[int][]float32, error)
	PutMany(model string, texts []string, vectors [][]float32) error
}

// CachedEmbedder answers from a VectorCache and embeds only the misses.
// Cache failures degrade to cache misses.
type CachedEmbedder struct {
	inner  port.Embedder
	cache  VectorCache
	logger *slog.Logger
}

var _ port.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner port.Embedder, cache VectorCache, logger *slog.Logger) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, logger: logging.OrDiscard(logger)}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.inner.ModelName()

	found, err := e.cache.GetMany(model, texts)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "error", err)
		found = nil
	}

	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		if v, ok := found[i]; ok && len(v) == e.inner.Dimension() {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	if len(missTexts) > 0 {
		vecs, err := e.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, i := range missIdx {
			out[i] = vecs[j]
		}
		if err := e.cache.PutMany(model, missTexts, vecs); err != nil {
			e.logger.Warn("embedding cache write failed", "error", err)
		}
	}

	e.logger.Debug("embedding cache", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

func (e *CachedEmbedder) ModelName() string {
	return e.inner.ModelName()
}
