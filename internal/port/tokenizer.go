package port

type Tokenizer interface {
	Tokenize(text string) []string

	CountTokens(text string) int
}

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	CountTokens(text string) int
}
