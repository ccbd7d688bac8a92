// Package app wires configuration into ready-to-use sessions.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/extract"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/memstore"
	"docqa/internal/adapter/store"
	"docqa/internal/logging"
	"docqa/internal/port"
	"docqa/internal/retry"
	"docqa/internal/usecase"
)

// Runtime holds the collaborators shared by every session of a process: the
// external model clients, their retry policy and rate limiter, and the
// optional embedding cache. Each session gets its own chunker state, index
// and composer.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	extractor port.Extractor
	embedder  port.Embedder
	generator port.Generator
	counter   port.TokenCounter
	cache     *store.BoltCache
}

// New validates cfg and builds the shared collaborators.
func New(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDiscard(logger)

	policy := retry.Policy{
		MaxAttempts: cfg.Resilience.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay(),
		MaxDelay:    cfg.RetryMaxDelay(),
		Timeout:     cfg.CallTimeout(),
		Limiter:     retry.NewLimiter(cfg.Resilience.RequestsPerSec, cfg.Resilience.Burst),
		Logger:      logger,
	}

	provider, err := embedding.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	var embedder port.Embedder = embedding.NewResilientEmbedder(provider, policy, embedding.Options{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Dimension:   cfg.Embedding.Dimension,
		Logger:      logger,
	})

	var cache *store.BoltCache
	if cfg.Cache.EmbeddingPath != "" {
		cache, err = store.OpenBoltCache(cfg.Cache.EmbeddingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		result, err := cache.Prepare(cfg.Embedding)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("failed to prepare embedding cache: %w", err)
		}
		if result.NeedsReset {
			logger.Info("embedding cache reset", "reason", result.Reason)
		}
		embedder = embedding.NewCachedEmbedder(embedder, cache, logger)
	}

	gen, err := llm.NewProvider(cfg.Generation)
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	counter, err := analyzer.NewTokenCounter(cfg.Generation.TokenCounter)
	if err != nil {
		logger.Warn("token counter unavailable, using heuristic", "counter", cfg.Generation.TokenCounter, "error", err)
	}

	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		extractor: extract.New(logger),
		embedder:  embedder,
		generator: llm.NewResilientGenerator(gen, policy),
		counter:   counter,
		cache:     cache,
	}, nil
}

// Config returns the validated configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Generator returns the resilient generator shared by all sessions.
func (r *Runtime) Generator() port.Generator { return r.generator }

// NewSession builds an empty session from the configuration.
func (r *Runtime) NewSession() (*usecase.Session, error) {
	ch, err := chunker.NewRecursiveChunker(r.cfg.Chunking.MaxChunkSize, r.cfg.Chunking.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	index, err := memstore.NewVectorIndex(r.embedder.Dimension())
	if err != nil {
		return nil, err
	}
	composer, err := usecase.NewComposer(r.generator, r.counter, usecase.ComposerOptions{
		PromptTokenBudget: r.cfg.Generation.PromptTokenBudget,
		MaxOutputTokens:   r.cfg.Generation.MaxOutputTokens,
		Temperature:       r.cfg.Generation.Temperature,
		AllowUngrounded:   r.cfg.Generation.AllowUngrounded,
	}, r.logger)
	if err != nil {
		return nil, err
	}

	return usecase.NewSession(usecase.Deps{
		Extractor: r.extractor,
		Chunker:   ch,
		Embedder:  r.embedder,
		Index:     index,
		Composer:  composer,
		Logger:    r.logger,
	}, usecase.SessionOptions{
		DefaultTopK:        r.cfg.Retrieve.TopK,
		RelevanceThreshold: r.cfg.Retrieve.RelevanceThreshold,
		MaxFileSize:        r.cfg.MaxFileSize(),
		QueryCacheSize:     r.cfg.Retrieve.QueryCacheSize,
		QueryCacheTTL:      time.Duration(r.cfg.Retrieve.QueryCacheTTLSecs) * time.Second,
	})
}

// Close releases the embedding cache.
func (r *Runtime) Close() error {
	if r.cache != nil {
		return r.cache.Close()
	}
	return nil
}
