package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"docqa/internal/domain"
)

// Error is the JSON body of every failed request.
type Error struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e Error) Error() string {
	return e.Message
}

func NewError(code int, kind, msg string) Error {
	return Error{Code: code, Kind: kind, Message: msg}
}

func ErrBadRequest() Error {
	return NewError(fiber.StatusBadRequest, "bad_request", "invalid JSON request")
}

// ValidationError lists the request fields that failed validation.
type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

var statusByError = []struct {
	target error
	code   int
	kind   string
}{
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input"},
	{domain.ErrExtraction, fiber.StatusUnprocessableEntity, "extraction_error"},
	{domain.ErrNotFound, fiber.StatusNotFound, "not_found"},
	{domain.ErrSessionClosed, fiber.StatusGone, "session_closed"},
	{domain.ErrEmbeddingUnavailable, fiber.StatusServiceUnavailable, "embedding_unavailable"},
	{domain.ErrGenerationUnavailable, fiber.StatusServiceUnavailable, "generation_unavailable"},
	{domain.ErrGenerationRejected, fiber.StatusBadGateway, "generation_rejected"},
	{domain.ErrConfiguration, fiber.StatusInternalServerError, "configuration_error"},
	{context.DeadlineExceeded, fiber.StatusGatewayTimeout, "timeout"},
}

// FromError maps a domain error onto an API error.
func FromError(err error) Error {
	var apiErr Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewError(fiberErr.Code, "http_error", fiberErr.Message)
	}
	for _, m := range statusByError {
		if errors.Is(err, m.target) {
			return NewError(m.code, m.kind, err.Error())
		}
	}
	return NewError(fiber.StatusInternalServerError, "internal", err.Error())
}

// NewErrorHandler returns a fiber error handler that logs server-side failures.
func NewErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var valErr ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}

		apiErr := FromError(err)
		if apiErr.Code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(), "path", c.Path(), "status", apiErr.Code, "error", err)
		} else {
			logger.Debug("request rejected",
				"method", c.Method(), "path", c.Path(), "status", apiErr.Code, "error", err)
		}
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}
