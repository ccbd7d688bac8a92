// Package remote classifies failures from hosted model APIs into retryable
// and permanent errors.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"

	"docqa/internal/domain"
	"docqa/internal/retry"
)

const maxBodyPreview = 300

// StatusError is a non-2xx response from a model API.
type StatusError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Classify wraps a status error so the retry loop can tell what to do.
// Rate limits and server errors are transient; a 429 that reports an
// exhausted quota and every other 4xx are permanent model rejections.
func Classify(e *StatusError, header http.Header) error {
	switch {
	case e.StatusCode == http.StatusTooManyRequests && isQuotaCode(e.Code, e.Message):
		return fmt.Errorf("%w: %w", domain.ErrModelRejected, e)
	case e.StatusCode == http.StatusTooManyRequests:
		if wait := retryAfter(header); wait > 0 {
			return &retry.AfterError{Wait: wait, Err: e}
		}
		return e
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode >= 500:
		return e
	case e.StatusCode >= 400:
		return fmt.Errorf("%w: %w", domain.ErrModelRejected, e)
	default:
		return e
	}
}

// FromResponse builds a classified error from an HTTP response body.
func FromResponse(op string, resp *http.Response, body []byte) error {
	preview := strings.TrimSpace(string(body))
	if len(preview) > maxBodyPreview {
		preview = preview[:maxBodyPreview]
	}
	return Classify(&StatusError{Op: op, StatusCode: resp.StatusCode, Message: preview}, resp.Header)
}

// FromOpenAI classifies an error returned by the openai-go client.
func FromOpenAI(op string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var header http.Header
	if apiErr.Response != nil {
		header = apiErr.Response.Header
	}
	return Classify(&StatusError{
		Op:         op,
		StatusCode: apiErr.StatusCode,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
	}, header)
}

func isQuotaCode(code, message string) bool {
	return code == "insufficient_quota" || strings.Contains(strings.ToLower(message), "quota")
}

func retryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	ra := header.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		return time.Until(t)
	}
	return 0
}
