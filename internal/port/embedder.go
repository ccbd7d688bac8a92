package port

import (
	"context"

	"docqa/internal/domain"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the vector for a single non-empty text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

// IndexEntry is a chunk paired with its embedding.
type IndexEntry struct {
	Chunk  domain.Chunk
	Vector []float32
}

// VectorIndex stores chunk embeddings and answers nearest-neighbour queries.
type VectorIndex interface {
	// Add inserts an entry, replacing any entry with the same chunk ID.
	Add(chunk domain.Chunk, vector []float32) error

	// AddBatch inserts all entries or none of them.
	AddBatch(entries []IndexEntry) error

	// ReplaceDocument atomically swaps every entry of a document for the given ones.
	ReplaceDocument(docID string, entries []IndexEntry) error

	// Search returns at most k entries by descending cosine similarity.
	Search(query []float32, k int) ([]domain.ScoredChunk, error)

	Remove(chunkID string) bool
	RemoveDocument(docID string) int
	Clear()
	Len() int
	Dimension() int
}
