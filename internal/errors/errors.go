// Package errors defines the structured API error responses the transport
// layer renders, and the mapping from domain errors onto them.
package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response.
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError.
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details.
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
	ErrUnauthorized   = New(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	ErrForbidden      = New(http.StatusForbidden, "FORBIDDEN", "Access denied")
	ErrNotFound       = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	ErrRateLimited    = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")
)

// ValidationError carries per-field validation details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrValidation creates a validation error with field details.
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// InvalidRequestWithError creates an invalid request error carrying the
// decode failure.
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// NotFoundError creates a not found error for a named resource.
func NotFoundError(resource string) *APIError {
	return New(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}
