package analyzer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"docqa/internal/port"
)

// DefaultEncoding is the BPE encoding used by current OpenAI chat models.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a real BPE encoding.
type TiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var _ port.TokenCounter = (*TiktokenCounter)(nil)

// NewTiktokenCounter loads the named encoding. Loading may download the
// encoding file on first use.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) CountTokens(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns the counter named in config, falling back to the
// word heuristic when the tiktoken encoding cannot be loaded.
func NewTokenCounter(name string) (port.TokenCounter, error) {
	if name == "tiktoken" {
		counter, err := NewTiktokenCounter(DefaultEncoding)
		if err != nil {
			return NewTokenizer(false), err
		}
		return counter, nil
	}
	return NewTokenizer(false), nil
}
