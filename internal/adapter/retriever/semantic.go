package retriever

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// SemanticRetriever embeds a query and searches the vector index with it.
type SemanticRetriever struct {
	index    port.VectorIndex
	embedder port.Embedder
}

var _ port.Retriever = (*SemanticRetriever)(nil)

func NewSemanticRetriever(index port.VectorIndex, embedder port.Embedder) *SemanticRetriever {
	return &SemanticRetriever{
		index:    index,
		embedder: embedder,
	}
}

// Retrieve returns up to k chunks by descending similarity. An empty index
// short-circuits without calling the embedder.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.InvalidInput("query is empty")
	}
	if k < 0 {
		return nil, domain.InvalidInput("top_k must not be negative, got %d", k)
	}
	if k == 0 || r.index.Len() == 0 {
		return nil, nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.index.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
