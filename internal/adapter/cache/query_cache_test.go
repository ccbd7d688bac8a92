package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func results(ids ...string) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(ids))
	for i, id := range ids {
		out[i] = domain.ScoredChunk{Chunk: domain.Chunk{ID: id}, Score: 1 / float64(i+1)}
	}
	return out
}

func TestQueryCache_GetPut(t *testing.T) {
	c := NewQueryCache(10, time.Minute)

	_, ok := c.Get("leave policy", 5)
	assert.False(t, ok)

	c.Put("leave policy", 5, c.Generation(), results("a", "b"))
	got, ok := c.Get("leave policy", 5)
	require.True(t, ok)
	assert.Equal(t, results("a", "b"), got)

	_, ok = c.Get("leave policy", 3)
	assert.False(t, ok, "topK is part of the key")
}

func TestQueryCache_InvalidateDropsEntriesAndStalePuts(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	gen := c.Generation()
	c.Put("q", 5, gen, results("a"))

	c.Invalidate()
	_, ok := c.Get("q", 5)
	assert.False(t, ok)

	c.Put("q", 5, gen, results("stale"))
	_, ok = c.Get("q", 5)
	assert.False(t, ok, "results computed before invalidation are not stored")
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("q", 1, c.Generation(), results("a"))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("q", 1)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	gen := c.Generation()
	c.Put("a", 1, gen, results("a"))
	c.Put("b", 1, gen, results("b"))

	_, _ = c.Get("a", 1)
	c.Put("c", 1, gen, results("c"))

	_, okA := c.Get("a", 1)
	_, okB := c.Get("b", 1)
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 2, c.Size())
}

type countingRetriever struct {
	calls int
}

func (r *countingRetriever) Retrieve(_ context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	r.calls++
	return results(query), nil
}

func TestCachedRetriever(t *testing.T) {
	inner := &countingRetriever{}
	cache := NewQueryCache(10, time.Minute)
	r := NewCachedRetriever(inner, cache)

	for i := 0; i < 3; i++ {
		got, err := r.Retrieve(context.Background(), "q", 5)
		require.NoError(t, err)
		assert.Equal(t, "q", got[0].Chunk.ID)
	}
	assert.Equal(t, 1, inner.calls)

	cache.Invalidate()
	_, err := r.Retrieve(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}
