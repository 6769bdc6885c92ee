// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/filesmile/backend/internal/pipeline"
	"github.com/filesmile/backend/internal/session"
	"github.com/filesmile/backend/internal/upload"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ShowErrorDetails includes the cause of unexpected errors in responses.
var ShowErrorDetails = true

func newAPIError(status int, code, message string, cause error) *APIError {
	err := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, "BAD_REQUEST", message, cause)
}

// NewValidationError creates a 400 error for a missing or invalid field
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, "VALIDATION_ERROR",
		fmt.Sprintf("validation failed for field: %s", field), nil)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return newAPIError(http.StatusNotFound, "NOT_FOUND",
		fmt.Sprintf("%s not found: %s", resource, id), nil)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, "CONFLICT", message, nil)
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, "INTERNAL_ERROR", message, cause)
}

// NewServiceUnavailableError creates a 503 error
func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, nil)
}

// NewUpstreamError creates a 502 error for ERP failures
func NewUpstreamError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadGateway, "UPSTREAM_ERROR", message, cause)
}

// fromDomainError maps pipeline, session and upload errors to API errors.
func fromDomainError(message string, err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, pipeline.ErrFileNotFound), errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, pipeline.ErrFileBusy),
		errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrDuplicateFile),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, upload.ErrJobRunning):
		return newAPIError(http.StatusConflict, "CONFLICT", message, err)
	case errors.Is(err, pipeline.ErrCacheNotReady), errors.Is(err, session.ErrTooManySessions):
		return newAPIError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, err)
	}
	return NewInternalError(message, err)
}

// ErrorHandler renders every handler error as an APIError.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &httpErr):
		apiErr = &APIError{
			Status:  httpErr.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", httpErr.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
		}
		if ShowErrorDetails {
			apiErr.Details = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(apiErr.Status)
		return
	}
	_ = c.JSON(apiErr.Status, apiErr)
}
