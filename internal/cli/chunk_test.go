package cli

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/config"
)

func TestBuildChunkReport_RebuildsText(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chunking.MaxChunkSize = 400
	cfg.Chunking.ChunkOverlap = 50

	paragraph := strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 6))
	text := strings.Join([]string{paragraph, paragraph, paragraph}, "\n\n")

	report, err := buildChunkReport(context.Background(), cfg, "notes.txt", []byte(text))
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", report.Document)
	assert.Equal(t, 400, report.MaxSize)
	assert.Equal(t, 50, report.Overlap)
	assert.True(t, report.Lossless)
	require.Greater(t, len(report.Chunks), 1)
	for _, c := range report.Chunks {
		assert.LessOrEqual(t, c.Runes, 400)
		assert.Equal(t, c.End-c.Start, c.Runes)
	}
}

func TestBuildChunkReport_UnsupportedFormat(t *testing.T) {
	_, err := buildChunkReport(context.Background(), config.DefaultConfig(), "image.png", []byte("data"))
	assert.Error(t, err)
}
