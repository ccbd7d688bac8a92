package embedding

import (
	"fmt"

	"docqa/config"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// NewProvider builds the raw embedder named by cfg.Provider.
func NewProvider(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    config.APIKey(cfg.APIKeyEnv),
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "ollama":
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension), nil
	case "hashing":
		return NewHashingEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}
