package port

import "docqa/internal/domain"

// Chunker splits a document's text into overlapping chunks.
type Chunker interface {
	Chunk(doc domain.Document) ([]domain.Chunk, error)
}
