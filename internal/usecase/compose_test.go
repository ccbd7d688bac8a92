package usecase

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/port"
)

type fakeGenerator struct {
	reply    string
	err      error
	requests []port.GenerateRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req port.GenerateRequest) (string, error) {
	g.requests = append(g.requests, req)
	return g.reply, g.err
}

func (g *fakeGenerator) ModelName() string { return "fake" }

type wordCounter struct{}

func (wordCounter) CountTokens(text string) int { return len(strings.Fields(text)) }

func scored(id, doc, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk: domain.Chunk{
			ID:           id,
			DocumentID:   doc,
			DocumentName: doc + ".txt",
			Text:         text,
			Start:        0,
			End:          len([]rune(text)),
		},
		Score: score,
	}
}

func newTestComposer(t *testing.T, gen port.Generator, budget int) *Composer {
	t.Helper()
	c, err := NewComposer(gen, wordCounter{}, ComposerOptions{
		PromptTokenBudget: budget,
		MaxOutputTokens:   256,
		Temperature:       0.1,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestCompose_NoChunksSkipsGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "should not be used"}
	c := newTestComposer(t, gen, 1000)

	answer, err := c.Compose(context.Background(), "What is X?", nil)
	require.NoError(t, err)
	assert.Equal(t, NoGroundingText, answer.Text)
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.Citations)
	assert.Empty(t, gen.requests)
}

func TestCompose_AllowUngroundedCallsGenerator(t *testing.T) {
	gen := &fakeGenerator{reply: "From general knowledge, X is a letter."}
	c := newTestComposer(t, gen, 1000)
	c.opts.AllowUngrounded = true

	answer, err := c.Compose(context.Background(), "What is X?", nil)
	require.NoError(t, err)
	require.Len(t, gen.requests, 1)
	assert.Empty(t, gen.requests[0].Context)
	assert.Contains(t, gen.requests[0].Prompt, "not grounded")
	assert.False(t, answer.Grounded)
	assert.Empty(t, answer.Citations)
}

func TestCompose_ExplicitCitations(t *testing.T) {
	gen := &fakeGenerator{reply: "  Staff get 25 days of leave [2], approved by a manager [2][1].  "}
	c := newTestComposer(t, gen, 1000)

	chunks := []domain.ScoredChunk{
		scored("c1", "handbook", "Leave requests are approved by a line manager.", 0.8),
		scored("c2", "policy", "Employees receive 25 days of paid annual leave.", 0.7),
	}
	answer, err := c.Compose(context.Background(), "How much leave do staff get?", chunks)
	require.NoError(t, err)

	assert.Equal(t, "Staff get 25 days of leave [2], approved by a manager [2][1].", answer.Text)
	assert.True(t, answer.Grounded)
	assert.True(t, answer.ExplicitCitations)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "c2", answer.Citations[0].ChunkID)
	assert.Equal(t, 2, answer.Citations[0].Marker)
	assert.Equal(t, "c1", answer.Citations[1].ChunkID)
	assert.Equal(t, "policy.txt", answer.Citations[0].DocumentName)

	req := gen.requests[0]
	assert.Equal(t, 256, req.MaxTokens)
	assert.Equal(t, "How much leave do staff get?", req.Question)
	require.Len(t, req.Context, 2)
	assert.Contains(t, req.Prompt, "[1] handbook.txt (chars 0-")
	assert.Contains(t, req.Prompt, "Question: How much leave do staff get?")
}

func TestCompose_NoMarkersReportsAllCandidates(t *testing.T) {
	gen := &fakeGenerator{reply: "Twenty-five days."}
	c := newTestComposer(t, gen, 1000)

	chunks := []domain.ScoredChunk{
		scored("c1", "a", "first passage", 0.9),
		scored("c2", "b", "second passage", 0.5),
	}
	answer, err := c.Compose(context.Background(), "How long?", chunks)
	require.NoError(t, err)
	assert.Equal(t, "Twenty-five days.", answer.Text)
	assert.False(t, answer.ExplicitCitations)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "c1", answer.Citations[0].ChunkID)
	assert.Equal(t, "c2", answer.Citations[1].ChunkID)
}

func TestParseMarkers(t *testing.T) {
	tests := []struct {
		text string
		max  int
		want []int
	}{
		{"no markers here", 3, nil},
		{"see [1] and [3]", 3, []int{1, 3}},
		{"grouped [1, 3] then [2]", 3, []int{1, 3, 2}},
		{"repeat [2] [2] [1]", 3, []int{2, 1}},
		{"out of range [0] [4] [2]", 3, []int{2}},
		{"not a marker [a] [1-2]", 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, parseMarkers(tt.text, tt.max))
		})
	}
}

func TestBuildPrompt_DropsLowestRelevanceChunks(t *testing.T) {
	c := newTestComposer(t, &fakeGenerator{}, 100000)

	chunks := []domain.ScoredChunk{
		scored("c1", "a", strings.Repeat("alpha ", 30), 0.9),
		scored("c2", "b", strings.Repeat("beta ", 30), 0.8),
		scored("c3", "c", strings.Repeat("gamma ", 30), 0.7),
	}
	full, err := c.BuildPrompt("question?", chunks)
	require.NoError(t, err)
	require.Len(t, full.Included, 3)

	_, twoTokens, err := c.render("question?", full.Request.Context[:2])
	require.NoError(t, err)
	c.opts.PromptTokenBudget = twoTokens

	p, err := c.BuildPrompt("question?", chunks)
	require.NoError(t, err)
	assert.False(t, p.Degraded)
	assert.Equal(t, 1, p.Dropped)
	require.Len(t, p.Included, 2)
	assert.Equal(t, "c1", p.Included[0].Chunk.ID)
	assert.Equal(t, "c2", p.Included[1].Chunk.ID)
	assert.LessOrEqual(t, p.Tokens, twoTokens)
	// Kept chunks are never cut.
	assert.Equal(t, chunks[1].Chunk.Text, p.Request.Context[1].Text)
}

func TestBuildPrompt_TruncatesTopChunkAtBoundary(t *testing.T) {
	c := newTestComposer(t, &fakeGenerator{}, 100000)

	first := strings.TrimSpace(strings.Repeat("one two three four. ", 10))
	second := strings.TrimSpace(strings.Repeat("five six seven eight. ", 10))
	chunk := scored("big", "doc", first+"\n\n"+second, 0.9)

	_, bare, err := c.render("question?", nil)
	require.NoError(t, err)
	// Room for the block header and most of the first paragraph.
	c.opts.PromptTokenBudget = bare + 50

	p, err := c.BuildPrompt("question?", []domain.ScoredChunk{chunk, scored("c2", "x", "other text", 0.1)})
	require.NoError(t, err)
	assert.True(t, p.Degraded)
	assert.Equal(t, 1, p.Dropped)
	require.Len(t, p.Request.Context, 1)

	kept := p.Request.Context[0].Text
	assert.True(t, strings.HasPrefix(chunk.Chunk.Text, kept))
	assert.Less(t, len(kept), len(chunk.Chunk.Text))
	assert.True(t, strings.HasSuffix(kept, ". "), "cut should land after a sentence, got %q", kept[len(kept)-10:])
	assert.LessOrEqual(t, p.Tokens, c.opts.PromptTokenBudget)
}

func TestCompose_DegradedFlagSurfaces(t *testing.T) {
	gen := &fakeGenerator{reply: "Partial [1]"}
	c := newTestComposer(t, gen, 100000)
	_, bare, err := c.render("q?", nil)
	require.NoError(t, err)
	c.opts.PromptTokenBudget = bare + 40

	answer, err := c.Compose(context.Background(), "q?", []domain.ScoredChunk{
		scored("big", "doc", strings.Repeat("word ", 200), 1),
	})
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "big", answer.Citations[0].ChunkID)
}

func TestBuildPrompt_QuestionOverBudget(t *testing.T) {
	c := newTestComposer(t, &fakeGenerator{}, 30)

	_, err := c.BuildPrompt(strings.Repeat("why ", 100), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.BuildPrompt("   ", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCompose_GenerationErrorsPropagate(t *testing.T) {
	for _, sentinel := range []error{domain.ErrGenerationRejected, domain.ErrGenerationUnavailable} {
		gen := &fakeGenerator{err: fmt.Errorf("%w: provider said no", sentinel)}
		c := newTestComposer(t, gen, 1000)

		_, err := c.Compose(context.Background(), "question", []domain.ScoredChunk{scored("c1", "a", "text", 1)})
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestNewComposer_RejectsBadBudget(t *testing.T) {
	_, err := NewComposer(&fakeGenerator{}, wordCounter{}, ComposerOptions{}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
