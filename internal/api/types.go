package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"docqa/internal/domain"
)

var validate = validator.New()

// Validate checks v's struct tags and returns the failing fields.
func Validate(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["request"] = err.Error()
		return out
	}
	for _, e := range verrs {
		out[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return out
}

type AskParams struct {
	Question string `json:"question" validate:"required"`
	TopK     int    `json:"top_k" validate:"gte=0,lte=100"`
}

type RetrieveParams struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`
}

type TextDocumentParams struct {
	Name string `json:"name" validate:"required"`
	Text string `json:"text" validate:"required"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
}

type IngestResponse struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks"`
	Replaced   bool   `json:"replaced"`
	Unchanged  bool   `json:"unchanged"`
	Error      *Error `json:"error,omitempty"`
}

func newIngestResponse(name string, res domain.IngestResult, err error) IngestResponse {
	out := IngestResponse{
		Name:       name,
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Replaced:   res.Replaced,
		Unchanged:  res.Unchanged,
	}
	if err != nil {
		apiErr := FromError(err)
		out.Error = &apiErr
	}
	return out
}

type BatchIngestResponse struct {
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Results   []IngestResponse `json:"results"`
}

type AnswerResponse struct {
	domain.Answer
	Timestamp time.Time `json:"timestamp"`
}
