package usecase

import (
	"context"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// RetrieveUseCase runs a retriever and applies the relevance threshold.
type RetrieveUseCase struct {
	retriever port.Retriever
	threshold *float64 // nil = no threshold
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(retriever port.Retriever, threshold *float64) *RetrieveUseCase {
	return &RetrieveUseCase{
		retriever: retriever,
		threshold: threshold,
	}
}

// Retrieve returns up to topK chunks in descending relevance order.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	results, err := u.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if u.threshold != nil {
		results = filterByThreshold(results, *u.threshold)
	}
	return results, nil
}

// filterByThreshold removes results below the minimum score.
func filterByThreshold(results []domain.ScoredChunk, min float64) []domain.ScoredChunk {
	filtered := make([]domain.ScoredChunk, 0, len(results))
	for _, r := range results {
		if r.Score >= min {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// ScoredChunkResult is a simplified result for CLI and API output.
type ScoredChunkResult struct {
	ChunkID  string  `json:"chunk_id"`
	Document string  `json:"document"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
	Page     int     `json:"page,omitempty"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// ToResults flattens scored chunks for display.
func ToResults(chunks []domain.ScoredChunk) []ScoredChunkResult {
	out := make([]ScoredChunkResult, len(chunks))
	for i, sc := range chunks {
		out[i] = ScoredChunkResult{
			ChunkID:  sc.Chunk.ID,
			Document: sc.Chunk.DocumentName,
			Start:    sc.Chunk.Start,
			End:      sc.Chunk.End,
			Page:     sc.Chunk.Page,
			Score:    sc.Score,
			Text:     sc.Chunk.Text,
		}
	}
	return out
}
