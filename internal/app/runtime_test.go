package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/domain"
)

func TestRuntime_DefaultConfigAnswersOffline(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.EmbeddingPath = filepath.Join(t.TempDir(), "cache", "embeddings.db")

	rt, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	s, err := rt.NewSession()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.IngestText(ctx, "handbook.txt", "Expense claims must be filed within 30 days of purchase.")
	require.NoError(t, err)

	answer, err := s.Ask(ctx, "When must expense claims be filed?", 0)
	require.NoError(t, err)
	assert.True(t, answer.Grounded)
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, "handbook.txt", answer.Citations[0].DocumentName)
}

func TestRuntime_SessionsAreIndependent(t *testing.T) {
	rt, err := New(config.DefaultConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })

	a, err := rt.NewSession()
	require.NoError(t, err)
	b, err := rt.NewSession()
	require.NoError(t, err)

	_, err = a.IngestText(context.Background(), "a.txt", "Only session A has this.")
	require.NoError(t, err)
	assert.Equal(t, 1, a.CorpusStats().ChunkCount)
	assert.Equal(t, 0, b.CorpusStats().ChunkCount)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.MaxChunkSize

	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
