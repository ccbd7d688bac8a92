package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"docqa/internal/adapter/remote"
	"docqa/internal/domain"
	"docqa/internal/port"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the model answered with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAIConfig configures a chat completions endpoint. BaseURL may point at
// any OpenAI-compatible service, Gemini's compatibility endpoint included.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIGenerator makes one chat completion per call and never retries.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

var (
	_ port.Generator = (*OpenAIGenerator)(nil)
	_ port.Pinger    = (*OpenAIGenerator)(nil)
)

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai generator requires an API key", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req port.GenerateRequest) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", remote.FromOpenAI("openai chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: %w", ErrEmptyCompletion)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: response blocked by content filter", domain.ErrModelRejected)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai chat: %w", ErrEmptyCompletion)
	}
	return text, nil
}

// Ping lists models to verify the endpoint and credentials.
func (g *OpenAIGenerator) Ping(ctx context.Context) error {
	if _, err := g.client.Models.List(ctx); err != nil {
		return remote.FromOpenAI("openai models", err)
	}
	return nil
}

func (g *OpenAIGenerator) ModelName() string {
	return g.model
}
