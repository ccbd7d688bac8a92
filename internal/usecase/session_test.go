package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/extract"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/memstore"
	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/retry"
)

const testDim = 256

// flakyEmbedder fails the first `failures` calls with a transient error;
// a negative count fails every call.
type flakyEmbedder struct {
	inner port.Embedder

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures != 0
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return nil, errors.New("503 service unavailable")
	}
	return f.inner.EmbedBatch(ctx, texts)
}

func (f *flakyEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyEmbedder) Dimension() int    { return f.inner.Dimension() }
func (f *flakyEmbedder) ModelName() string { return f.inner.ModelName() }

type harness struct {
	session  *Session
	provider *flakyEmbedder
	index    *memstore.VectorIndex
}

type harnessOption func(*Deps, *SessionOptions)

func withGenerator(g port.Generator) harnessOption {
	return func(d *Deps, _ *SessionOptions) {
		c, err := NewComposer(g, analyzer.NewTokenizer(false), ComposerOptions{PromptTokenBudget: 3000, MaxOutputTokens: 256}, nil)
		if err != nil {
			panic(err)
		}
		d.Composer = c
	}
}

func withOptions(fn func(*SessionOptions)) harnessOption {
	return func(_ *Deps, o *SessionOptions) { fn(o) }
}

func newHarness(t *testing.T, failures int, opts ...harnessOption) *harness {
	t.Helper()

	hashing, err := embedding.NewHashingEmbedder(testDim)
	require.NoError(t, err)
	provider := &flakyEmbedder{inner: hashing, failures: failures}

	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: time.Second}
	embedder := embedding.NewResilientEmbedder(provider, policy, embedding.Options{BatchSize: 8, Concurrency: 2})

	ch, err := chunker.NewRecursiveChunker(400, 50)
	require.NoError(t, err)
	index, err := memstore.NewVectorIndex(testDim)
	require.NoError(t, err)

	deps := Deps{
		Extractor: extract.New(nil),
		Chunker:   ch,
		Embedder:  embedder,
		Index:     index,
	}
	sopts := SessionOptions{DefaultTopK: 5, MaxFileSize: 1 << 20}
	withGenerator(llm.NewExtractiveGenerator(2))(&deps, &sopts)
	for _, o := range opts {
		o(&deps, &sopts)
	}

	s, err := NewSession(deps, sopts)
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return &harness{session: s, provider: provider, index: index}
}

// paragraph returns exactly n characters of words.
func paragraph(word string, n int) string {
	p := strings.Repeat(word+" ", n/len(word)+1)[:n]
	return p[:n-1] + "."
}

func txt(name, text string) domain.Upload {
	return domain.Upload{Name: name, Format: domain.FormatText, Data: []byte(text)}
}

func TestSession_ThreeParagraphDocumentYieldsThreeChunks(t *testing.T) {
	h := newHarness(t, 0)
	text := paragraph("alpha", 299) + "\n\n" + paragraph("bravo", 299) + "\n\n" + paragraph("charlie", 298)
	require.Len(t, []rune(text), 900)

	res, err := h.session.Ingest(context.Background(), txt("three.txt", text))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
	assert.NotEmpty(t, res.DocumentID)

	stats := h.session.CorpusStats()
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 3, stats.ChunkCount)
	assert.Equal(t, 900, stats.Documents[0].Characters)
}

func TestSession_EmptyCorpusAnswersWithoutModelCalls(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	h := newHarness(t, 0, withGenerator(gen))

	answer, err := h.session.Ask(context.Background(), "What is X?", 0)
	require.NoError(t, err)
	assert.Equal(t, NoGroundingText, answer.Text)
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.Citations)
	assert.Empty(t, gen.requests)
	assert.Equal(t, 0, h.provider.Calls())
}

func TestSession_RelevantChunkIsCited(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.session.Ingest(ctx, txt("leave.txt", "Employees receive 25 days of paid annual leave each year."))
	require.NoError(t, err)

	results, err := h.session.Retrieve(ctx, "How many days of annual leave do employees receive?", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	answer, err := h.session.Ask(ctx, "How many days of annual leave do employees receive?", 0)
	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	assert.True(t, answer.ExplicitCitations)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, results[0].Chunk.ID, answer.Citations[0].ChunkID)
	assert.Equal(t, "leave.txt", answer.Citations[0].DocumentName)
	assert.Contains(t, answer.Text, "25 days")
}

func TestSession_EmbeddingRecoversAfterTransientFailures(t *testing.T) {
	h := newHarness(t, 2)

	res, err := h.session.Ingest(context.Background(), txt("notes.txt", "The server room is on the third floor."))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 3, h.provider.Calls())
	assert.Equal(t, 1, h.index.Len())
}

func TestSession_EmbeddingExhaustionLeavesCorpusUntouched(t *testing.T) {
	h := newHarness(t, -1)

	_, err := h.session.Ingest(context.Background(), txt("notes.txt", "The server room is on the third floor."))
	require.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 3, h.provider.Calls())
	assert.Equal(t, 0, h.index.Len())
	assert.Empty(t, h.session.Documents())
}

func TestSession_ExtractionFailureDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t, 0)

	outcomes := h.session.IngestBatch(context.Background(), []domain.Upload{
		txt("good.txt", "Visitors sign in at reception."),
		{Name: "broken.pdf", Format: domain.FormatPDF, Data: []byte("not a pdf at all")},
		{Name: "binary.txt", Format: domain.FormatText, Data: []byte{0xff, 0xfe, 0x00, 0x41}},
		txt("also-good.txt", "Parking permits are issued by facilities."),
	})
	require.Len(t, outcomes, 4)

	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrExtraction)
	assert.ErrorIs(t, outcomes[2].Err, domain.ErrExtraction)
	assert.NoError(t, outcomes[3].Err)

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, outcomes[1].Err, &extractErr)
	assert.Equal(t, "broken.pdf", extractErr.Document)

	assert.Equal(t, 2, h.session.CorpusStats().DocumentCount)
}

func TestSession_ReingestUnchangedAndReplaced(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	first, err := h.session.Ingest(ctx, txt("policy.txt", "Version one of the travel policy."))
	require.NoError(t, err)
	calls := h.provider.Calls()

	same, err := h.session.Ingest(ctx, txt("policy.txt", "Version one of the travel policy."))
	require.NoError(t, err)
	assert.True(t, same.Unchanged)
	assert.Equal(t, first.DocumentID, same.DocumentID)
	assert.Equal(t, calls, h.provider.Calls(), "unchanged content must not be re-embedded")

	updated, err := h.session.Ingest(ctx, txt("policy.txt", "Version two of the travel policy, now with rail passes."))
	require.NoError(t, err)
	assert.True(t, updated.Replaced)
	assert.Equal(t, first.DocumentID, updated.DocumentID)

	stats := h.session.CorpusStats()
	assert.Equal(t, 1, stats.DocumentCount)
	assert.Equal(t, 1, stats.ChunkCount)

	doc, err := h.session.Document(first.DocumentID)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "rail passes")
}

func TestSession_FileSizeLimit(t *testing.T) {
	h := newHarness(t, 0, withOptions(func(o *SessionOptions) { o.MaxFileSize = 16 }))

	_, err := h.session.Ingest(context.Background(), txt("big.txt", strings.Repeat("x", 17)))
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Equal(t, 0, h.provider.Calls())
}

func TestSession_BlankUploadIsExtractionError(t *testing.T) {
	h := newHarness(t, 0)

	_, err := h.session.Ingest(context.Background(), txt("blank.txt", " \n\n\t "))
	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "blank.txt", extractErr.Document)
	assert.Contains(t, extractErr.Reason, "no extractable text")
	assert.Equal(t, 0, h.provider.Calls())
	assert.Equal(t, 0, h.session.CorpusStats().DocumentCount)
}

func TestSession_InvalidInput(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	_, err := h.session.Ask(ctx, "   ", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.session.Ask(ctx, "question", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.session.IngestText(ctx, "empty.txt", "  \n ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.session.Ingest(ctx, txt("", "text"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSession_RelevanceThresholdCanRemoveEverything(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	strict := 0.999
	h := newHarness(t, 0, withGenerator(gen), withOptions(func(o *SessionOptions) {
		o.RelevanceThreshold = &strict
	}))
	ctx := context.Background()

	_, err := h.session.IngestText(ctx, "menu.txt", "The cafeteria serves soup on Fridays.")
	require.NoError(t, err)

	answer, err := h.session.Ask(ctx, "Who approves travel expenses?", 0)
	require.NoError(t, err)
	assert.Equal(t, NoGroundingText, answer.Text)
	assert.Empty(t, gen.requests)
}

func TestSession_GenerationErrorsSurface(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rejected", fmt.Errorf("invalid api key: %w", domain.ErrModelRejected), domain.ErrGenerationRejected},
		{"unavailable", errors.New("502 bad gateway"), domain.ErrGenerationUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			h := newHarness(t, 0, withGenerator(llm.NewResilientGenerator(gen, policy)))
			ctx := context.Background()

			_, err := h.session.IngestText(ctx, "doc.txt", "Invoices are paid within thirty days.")
			require.NoError(t, err)

			_, err = h.session.Ask(ctx, "When are invoices paid?", 0)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSession_QueryCacheSeesNewDocuments(t *testing.T) {
	h := newHarness(t, 0, withOptions(func(o *SessionOptions) {
		o.QueryCacheSize = 16
		o.QueryCacheTTL = time.Minute
	}))
	ctx := context.Background()

	_, err := h.session.IngestText(ctx, "a.txt", "Annual leave is 25 days.")
	require.NoError(t, err)
	first, err := h.session.Retrieve(ctx, "annual leave", 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = h.session.IngestText(ctx, "b.txt", "Annual leave carries over for one year.")
	require.NoError(t, err)
	second, err := h.session.Retrieve(ctx, "annual leave", 5)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	require.NoError(t, h.session.RemoveDocument(second[0].Chunk.DocumentID))
	third, err := h.session.Retrieve(ctx, "annual leave", 5)
	require.NoError(t, err)
	assert.Len(t, third, 1)
}

func TestSession_RemoveClearDestroy(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()

	a, err := h.session.IngestText(ctx, "a.txt", "First document.")
	require.NoError(t, err)
	_, err = h.session.IngestText(ctx, "b.txt", "Second document.")
	require.NoError(t, err)

	require.NoError(t, h.session.RemoveDocument(a.DocumentID))
	assert.ErrorIs(t, h.session.RemoveDocument(a.DocumentID), domain.ErrNotFound)
	assert.Equal(t, 1, h.session.CorpusStats().DocumentCount)

	require.NoError(t, h.session.ClearCorpus())
	stats := h.session.CorpusStats()
	assert.Equal(t, 0, stats.DocumentCount)
	assert.Equal(t, 0, stats.ChunkCount)

	// Still usable after a clear.
	_, err = h.session.IngestText(ctx, "c.txt", "Third document.")
	require.NoError(t, err)

	h.session.Destroy()
	_, err = h.session.Ask(ctx, "anything", 0)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	_, err = h.session.IngestText(ctx, "d.txt", "text")
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
	assert.ErrorIs(t, h.session.ClearCorpus(), domain.ErrSessionClosed)
	assert.Equal(t, 0, h.index.Len())
}

func TestSession_ConcurrentAsksDuringIngest(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	_, err := h.session.IngestText(ctx, "seed.txt", "Security badges are required on every floor.")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.session.IngestText(ctx, fmt.Sprintf("doc-%d.txt", i), fmt.Sprintf("Floor %d has a kitchen and badge readers.", i))
			errs <- err
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.session.Ask(ctx, "Where are badges required?", 3)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 9, h.session.CorpusStats().DocumentCount)
}

func TestNewSession_RejectsMismatchedDimensions(t *testing.T) {
	hashing, err := embedding.NewHashingEmbedder(64)
	require.NoError(t, err)
	index, err := memstore.NewVectorIndex(128)
	require.NoError(t, err)
	ch, err := chunker.NewRecursiveChunker(400, 50)
	require.NoError(t, err)
	composer, err := NewComposer(&fakeGenerator{}, analyzer.NewTokenizer(false), ComposerOptions{PromptTokenBudget: 100}, nil)
	require.NoError(t, err)

	_, err = NewSession(Deps{
		Extractor: extract.New(nil),
		Chunker:   ch,
		Embedder:  hashing,
		Index:     index,
		Composer:  composer,
	}, SessionOptions{DefaultTopK: 5})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSessionManager_Lifecycle(t *testing.T) {
	mgr := NewSessionManager(func() (*Session, error) {
		return newHarness(t, 0).session, nil
	}, nil)

	a, err := mgr.Create()
	require.NoError(t, err)
	b, err := mgr.Create()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	_, err = a.IngestText(context.Background(), "only-a.txt", "Session A knows about llamas.")
	require.NoError(t, err)
	assert.Equal(t, 1, a.CorpusStats().DocumentCount)
	assert.Equal(t, 0, b.CorpusStats().DocumentCount)

	got, err := mgr.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Len(t, mgr.List(), 2)

	require.NoError(t, mgr.Destroy(a.ID()))
	_, err = mgr.Get(a.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, mgr.Destroy(a.ID()), domain.ErrNotFound)
	_, err = a.Ask(context.Background(), "llamas?", 0)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	mgr.Close()
	assert.Empty(t, mgr.List())
}
