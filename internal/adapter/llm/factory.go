package llm

import (
	"fmt"

	"docqa/config"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// NewProvider builds the raw generator named by cfg.Provider.
func NewProvider(cfg config.GenerationConfig) (port.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:  config.APIKey(cfg.APIKeyEnv),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
	case "ollama":
		return NewOllamaGenerator(cfg.Model, cfg.BaseURL), nil
	case "extractive":
		return NewExtractiveGenerator(2), nil
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}
