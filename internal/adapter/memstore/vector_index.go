package memstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/port"
)

// VectorIndex is an in-memory cosine-similarity index. Vectors are stored
// L2-normalised so a search is a dot product per entry. Writers hold the
// lock for the whole mutation, so readers never see a partial entry.
type VectorIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*indexEntry
	docChunks map[string][]string
	seq       uint64
}

type indexEntry struct {
	chunk  domain.Chunk
	vector []float32
	seq    uint64
}

var _ port.VectorIndex = (*VectorIndex)(nil)

func NewVectorIndex(dimension int) (*VectorIndex, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension must be positive, got %d", domain.ErrConfiguration, dimension)
	}
	return &VectorIndex{
		dimension: dimension,
		entries:   make(map[string]*indexEntry),
		docChunks: make(map[string][]string),
	}, nil
}

func (x *VectorIndex) Dimension() int {
	return x.dimension
}

func (x *VectorIndex) Add(chunk domain.Chunk, vector []float32) error {
	return x.AddBatch([]port.IndexEntry{{Chunk: chunk, Vector: vector}})
}

// AddBatch validates every entry before writing any of them.
func (x *VectorIndex) AddBatch(entries []port.IndexEntry) error {
	prepared, err := x.prepare(entries)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range prepared {
		x.put(e)
	}
	return nil
}

// ReplaceDocument drops every entry of docID and inserts the given ones
// under a single write lock.
func (x *VectorIndex) ReplaceDocument(docID string, entries []port.IndexEntry) error {
	for _, e := range entries {
		if e.Chunk.DocumentID != docID {
			return domain.InvalidInput("chunk %s belongs to document %s, not %s", e.Chunk.ID, e.Chunk.DocumentID, docID)
		}
	}
	prepared, err := x.prepare(entries)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeDocument(docID)
	for _, e := range prepared {
		x.put(e)
	}
	return nil
}

func (x *VectorIndex) prepare(entries []port.IndexEntry) ([]indexEntry, error) {
	out := make([]indexEntry, 0, len(entries))
	for _, e := range entries {
		if e.Chunk.ID == "" {
			return nil, domain.InvalidInput("chunk without id")
		}
		if len(e.Vector) != x.dimension {
			return nil, fmt.Errorf("%w: vector for chunk %s has dimension %d, index expects %d",
				domain.ErrConfiguration, e.Chunk.ID, len(e.Vector), x.dimension)
		}
		v, ok := normalize(e.Vector)
		if !ok {
			return nil, domain.InvalidInput("vector for chunk %s has zero or non-finite norm", e.Chunk.ID)
		}
		out = append(out, indexEntry{chunk: e.Chunk, vector: v})
	}
	return out, nil
}

// put inserts or replaces an entry. A replaced entry keeps its original
// insertion sequence. Callers hold the write lock.
func (x *VectorIndex) put(e indexEntry) {
	if old, ok := x.entries[e.chunk.ID]; ok {
		e.seq = old.seq
		if old.chunk.DocumentID != e.chunk.DocumentID {
			x.unlinkChunk(old.chunk.DocumentID, old.chunk.ID)
			x.docChunks[e.chunk.DocumentID] = append(x.docChunks[e.chunk.DocumentID], e.chunk.ID)
		}
	} else {
		x.seq++
		e.seq = x.seq
		x.docChunks[e.chunk.DocumentID] = append(x.docChunks[e.chunk.DocumentID], e.chunk.ID)
	}
	stored := e
	x.entries[e.chunk.ID] = &stored
}

// Search returns at most k chunks by descending cosine similarity; equal
// scores keep insertion order.
func (x *VectorIndex) Search(query []float32, k int) ([]domain.ScoredChunk, error) {
	if k < 0 {
		return nil, domain.InvalidInput("k must not be negative, got %d", k)
	}
	if len(query) != x.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d", domain.ErrConfiguration, len(query), x.dimension)
	}
	q, ok := normalize(query)
	if !ok {
		return nil, domain.InvalidInput("query vector has zero or non-finite norm")
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if k == 0 || len(x.entries) == 0 {
		return nil, nil
	}

	type scored struct {
		entry *indexEntry
		score float64
	}
	scores := make([]scored, 0, len(x.entries))
	for _, e := range x.entries {
		scores = append(scores, scored{entry: e, score: dot(q, e.vector)})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].entry.seq < scores[j].entry.seq
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]domain.ScoredChunk, k)
	for i := 0; i < k; i++ {
		results[i] = domain.ScoredChunk{
			Chunk: scores[i].entry.chunk,
			Score: scores[i].score,
		}
	}
	return results, nil
}

func (x *VectorIndex) Remove(chunkID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	e, ok := x.entries[chunkID]
	if !ok {
		return false
	}
	delete(x.entries, chunkID)
	x.unlinkChunk(e.chunk.DocumentID, chunkID)
	return true
}

func (x *VectorIndex) RemoveDocument(docID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.removeDocument(docID)
}

func (x *VectorIndex) removeDocument(docID string) int {
	ids := x.docChunks[docID]
	for _, id := range ids {
		delete(x.entries, id)
	}
	delete(x.docChunks, docID)
	return len(ids)
}

func (x *VectorIndex) unlinkChunk(docID, chunkID string) {
	ids := x.docChunks[docID]
	for i, id := range ids {
		if id == chunkID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(x.docChunks, docID)
		return
	}
	x.docChunks[docID] = ids
}

// Clear removes every entry. Insertion order restarts.
func (x *VectorIndex) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = make(map[string]*indexEntry)
	x.docChunks = make(map[string][]string)
	x.seq = 0
}

func (x *VectorIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// DocumentChunks returns the number of indexed chunks per document.
func (x *VectorIndex) DocumentChunks() map[string]int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make(map[string]int, len(x.docChunks))
	for id, chunks := range x.docChunks {
		out[id] = len(chunks)
	}
	return out
}

func normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, false
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out, true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
