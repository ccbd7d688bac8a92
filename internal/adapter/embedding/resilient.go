package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/port"
	"docqa/internal/retry"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
)

// ResilientEmbedder adds input validation, retries, batching with bounded
// concurrency and dimension checks around a raw provider.
type ResilientEmbedder struct {
	inner       port.Embedder
	policy      retry.Policy
	batchSize   int
	concurrency int
	dimension   int
	logger      *slog.Logger
}

var _ port.Embedder = (*ResilientEmbedder)(nil)

// Options tune a ResilientEmbedder. Dimension is the size every returned
// vector must have; zero takes the provider's declared dimension.
type Options struct {
	BatchSize   int
	Concurrency int
	Dimension   int
	Logger      *slog.Logger
}

func NewResilientEmbedder(inner port.Embedder, policy retry.Policy, opts Options) *ResilientEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Dimension <= 0 {
		opts.Dimension = inner.Dimension()
	}
	logger := logging.OrDiscard(opts.Logger)
	if policy.Logger == nil {
		policy.Logger = logger
	}
	return &ResilientEmbedder{
		inner:       inner,
		policy:      policy,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		dimension:   opts.Dimension,
		logger:      logger,
	}
}

func (e *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of batchSize, at most concurrency at a
// time. The first failing batch cancels the rest.
func (e *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, domain.InvalidInput("text %d is empty", i)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, batch := start, texts[start:end]

		g.Go(func() error {
			vecs, err := retry.DoValue(gctx, e.policy, "embed", func(ctx context.Context) ([][]float32, error) {
				vecs, err := e.inner.EmbedBatch(ctx, batch)
				if err != nil {
					return nil, err
				}
				if len(vecs) != len(batch) {
					return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch))
				}
				return vecs, nil
			})
			if err != nil {
				return e.classify(err)
			}
			for i, v := range vecs {
				if len(v) != e.dimension {
					return fmt.Errorf("%w: model %s returned dimension %d, configured %d",
						domain.ErrConfiguration, e.inner.ModelName(), len(v), e.dimension)
				}
				out[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.logger.Debug("embedded batch", "texts", len(texts), "model", e.inner.ModelName())
	return out, nil
}

func (e *ResilientEmbedder) classify(err error) error {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.As(err, &exhausted):
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	case errors.Is(err, domain.ErrModelRejected):
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	default:
		return err
	}
}

func (e *ResilientEmbedder) Dimension() int {
	return e.dimension
}

func (e *ResilientEmbedder) ModelName() string {
	return e.inner.ModelName()
}
