package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"docqa/internal/domain"
)

// Config holds all configuration for a docqa session.
type Config struct {
	Chunking   ChunkingConfig   `yaml:"chunking" toml:"chunking"`
	Embedding  EmbeddingConfig  `yaml:"embedding" toml:"embedding"`
	Retrieve   RetrieveConfig   `yaml:"retrieve" toml:"retrieve"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Resilience ResilienceConfig `yaml:"resilience" toml:"resilience"`
	Ingest     IngestConfig     `yaml:"ingest" toml:"ingest"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// ChunkingConfig sizes chunks in characters.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" toml:"max_chunk_size" validate:"gt=0"`
	ChunkOverlap int `yaml:"chunk_overlap" toml:"chunk_overlap" validate:"gte=0,ltfield=MaxChunkSize"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" toml:"provider" validate:"oneof=openai ollama hashing"`
	Model       string `yaml:"model" toml:"model" validate:"required"`
	BaseURL     string `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"` // Environment variable for API key
	Dimension   int    `yaml:"dimension" toml:"dimension" validate:"gt=0"`
	BatchSize   int    `yaml:"batch_size" toml:"batch_size" validate:"gt=0"`
	Concurrency int    `yaml:"concurrency" toml:"concurrency" validate:"gt=0,lte=64"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK int `yaml:"top_k" toml:"top_k" validate:"gt=0,lte=100"`
	// RelevanceThreshold drops chunks scoring below it. Unset means no threshold.
	RelevanceThreshold *float64 `yaml:"relevance_threshold" toml:"relevance_threshold" validate:"omitempty,gte=-1,lte=1"`
	QueryCacheSize     int      `yaml:"query_cache_size" toml:"query_cache_size" validate:"gte=0"`
	QueryCacheTTLSecs  int      `yaml:"query_cache_ttl_secs" toml:"query_cache_ttl_secs" validate:"gte=0"`
}

// GenerationConfig holds answer generation configuration.
type GenerationConfig struct {
	Provider          string  `yaml:"provider" toml:"provider" validate:"oneof=openai ollama extractive"`
	Model             string  `yaml:"model" toml:"model" validate:"required"`
	BaseURL           string  `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Temperature       float64 `yaml:"temperature" toml:"temperature" validate:"gte=0,lte=2"`
	MaxOutputTokens   int     `yaml:"max_output_tokens" toml:"max_output_tokens" validate:"gte=0"`
	PromptTokenBudget int     `yaml:"prompt_token_budget" toml:"prompt_token_budget" validate:"gte=64"`
	TokenCounter      string  `yaml:"token_counter" toml:"token_counter" validate:"oneof=heuristic tiktoken"`
	AllowUngrounded   bool    `yaml:"allow_ungrounded" toml:"allow_ungrounded"`
}

// ResilienceConfig bounds every call to an external model service.
type ResilienceConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" toml:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelayMs    int     `yaml:"base_delay_ms" toml:"base_delay_ms" validate:"gte=0"`
	MaxDelayMs     int     `yaml:"max_delay_ms" toml:"max_delay_ms" validate:"gtefield=BaseDelayMs"`
	TimeoutSecs    int     `yaml:"timeout_secs" toml:"timeout_secs" validate:"gt=0"`
	RequestsPerSec float64 `yaml:"requests_per_sec" toml:"requests_per_sec" validate:"gte=0"` // 0 = unlimited
	Burst          int     `yaml:"burst" toml:"burst" validate:"gte=0"`
}

// IngestConfig holds document ingestion configuration.
type IngestConfig struct {
	MaxFileSizeMB int      `yaml:"max_file_size_mb" toml:"max_file_size_mb" validate:"gt=0"`
	Includes      []string `yaml:"includes" toml:"includes"`
	Excludes      []string `yaml:"excludes" toml:"excludes"`
}

// CacheConfig configures the persistent embedding cache. An empty path disables it.
type CacheConfig struct {
	EmbeddingPath string `yaml:"embedding_path" toml:"embedding_path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string `yaml:"addr" toml:"addr" validate:"required"`
	BodyLimitMB int    `yaml:"body_limit_mb" toml:"body_limit_mb" validate:"gt=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			MaxChunkSize: 1000,
			ChunkOverlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:    "hashing",
			Model:       "hashing-v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   384,
			BatchSize:   32,
			Concurrency: 4,
		},
		Retrieve: RetrieveConfig{
			TopK:              5,
			QueryCacheSize:    128,
			QueryCacheTTLSecs: 300,
		},
		Generation: GenerationConfig{
			Provider:          "extractive",
			Model:             "extractive",
			APIKeyEnv:         "OPENAI_API_KEY",
			Temperature:       0.2,
			MaxOutputTokens:   512,
			PromptTokenBudget: 3000,
			TokenCounter:      "heuristic",
		},
		Resilience: ResilienceConfig{
			MaxAttempts: 3,
			BaseDelayMs: 200,
			MaxDelayMs:  5000,
			TimeoutSecs: 30,
			Burst:       1,
		},
		Ingest: IngestConfig{
			MaxFileSizeMB: 10,
			Includes:      []string{"**/*.pdf", "**/*.txt", "**/*.md", "**/*.docx"},
			Excludes:      []string{"**/.git/**", "**/node_modules/**", "**/vendor/**"},
		},
		Server: ServerConfig{
			Addr:        ":8080",
			BodyLimitMB: 16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

var validate = validator.New()

// Validate checks every field and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "ltfield":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Sprintf("%s is required", field)
	default:
		return fmt.Sprintf("%s failed %s=%s (value %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// RetryBaseDelay returns the first backoff delay.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Resilience.BaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.Resilience.MaxDelayMs) * time.Millisecond
}

// CallTimeout returns the per-attempt timeout for external calls.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Resilience.TimeoutSecs) * time.Second
}

// MaxFileSize returns the upload limit in bytes.
func (c *Config) MaxFileSize() int64 {
	return int64(c.Ingest.MaxFileSizeMB) << 20
}

// Load loads configuration from a YAML or TOML file, chosen by extension.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml,
// docqa.toml, then .docqa/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	candidates := []string{
		filepath.Join(dir, "docqa.yaml"),
		filepath.Join(dir, "docqa.toml"),
		filepath.Join(dir, ".docqa", "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML or TOML file, chosen by extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// APIKey resolves an API key from the named environment variable.
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
