package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrExtraction            = errors.New("extraction failed")
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrGenerationRejected    = errors.New("generation rejected")
	ErrConfiguration         = errors.New("configuration error")

	// ErrModelRejected marks a provider response that will not succeed on retry:
	// bad credentials, exhausted quota, malformed request or a content filter.
	ErrModelRejected = errors.New("model rejected request")

	ErrNotFound      = errors.New("not found")
	ErrSessionClosed = errors.New("session closed")
)

// ExtractionError reports a document whose text could not be recovered.
type ExtractionError struct {
	Document string
	Format   Format
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s: %s", e.Document, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// NewExtractionError builds an ExtractionError for the named document.
func NewExtractionError(name string, format Format, reason string, err error) *ExtractionError {
	return &ExtractionError{Document: name, Format: format, Reason: reason, Err: err}
}

// InvalidInput wraps ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
