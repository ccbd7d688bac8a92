package port

import "context"

// ContextBlock is one numbered passage included in a prompt.
type ContextBlock struct {
	Marker int
	Source string
	Text   string
}

// GenerateRequest is a single completion call. Prompt is the fully rendered
// user message; Question and Context carry the same content in structured
// form for generators that do not read free text.
type GenerateRequest struct {
	System      string
	Prompt      string
	Question    string
	Context     []ContextBlock
	MaxTokens   int
	Temperature float64
}

// Generator produces an answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Pinger is implemented by generators that can verify connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
