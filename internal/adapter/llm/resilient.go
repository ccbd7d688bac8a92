package llm

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/domain"
	"docqa/internal/port"
	"docqa/internal/retry"
)

// ResilientGenerator retries transient generation failures and maps the
// outcome onto the generation error kinds.
type ResilientGenerator struct {
	inner  port.Generator
	policy retry.Policy
}

var _ port.Generator = (*ResilientGenerator)(nil)

func NewResilientGenerator(inner port.Generator, policy retry.Policy) *ResilientGenerator {
	return &ResilientGenerator{inner: inner, policy: policy}
}

func (g *ResilientGenerator) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	text, err := retry.DoValue(ctx, g.policy, "generate", func(ctx context.Context) (string, error) {
		return g.inner.Generate(ctx, req)
	})
	if err == nil {
		return text, nil
	}

	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, domain.ErrModelRejected):
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationRejected, err)
	case errors.As(err, &exhausted):
		return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	default:
		return "", err
	}
}

// Ping delegates to the wrapped generator when it supports connectivity checks.
func (g *ResilientGenerator) Ping(ctx context.Context) error {
	p, ok := g.inner.(port.Pinger)
	if !ok {
		return nil
	}
	return retry.Do(ctx, g.policy, "ping", p.Ping)
}

func (g *ResilientGenerator) ModelName() string {
	return g.inner.ModelName()
}
