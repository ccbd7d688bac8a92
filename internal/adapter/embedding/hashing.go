package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// HashingEmbedder maps stemmed terms and term bigrams into a fixed number of
// signed buckets. It needs no network and is fully deterministic, so texts
// sharing vocabulary land close together in cosine space.
type HashingEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

var _ port.Embedder = (*HashingEmbedder)(nil)

func NewHashingEmbedder(dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: hashing dimension must be positive", domain.ErrConfiguration)
	}
	return &HashingEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}, nil
}

func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.InvalidInput("cannot embed empty text")
	}

	v := make([]float64, e.dimension)
	terms := e.tokenizer.Tokenize(text)
	if len(terms) == 0 {
		// Stopword-only or punctuation-only text still needs a direction.
		terms = analyzer.Words(strings.ToLower(text))
		if len(terms) == 0 {
			terms = []string{strings.TrimSpace(text)}
		}
	}

	for i, term := range terms {
		e.add(v, term, 1)
		if i > 0 {
			e.add(v, terms[i-1]+" "+term, 0.5)
		}
	}

	var norm float64
	for _, f := range v {
		norm += f * f
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dimension)
	if norm == 0 {
		// Colliding signs can cancel out exactly; fall back to a single bucket.
		out[e.bucket(text)] = 1
		return out, nil
	}
	for i, f := range v {
		out[i] = float32(f / norm)
	}
	return out, nil
}

func (e *HashingEmbedder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func (e *HashingEmbedder) bucket(s string) int {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int(h.Sum64() % uint64(e.dimension))
}

func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashingEmbedder) Dimension() int {
	return e.dimension
}

func (e *HashingEmbedder) ModelName() string {
	return "hashing-v1"
}
