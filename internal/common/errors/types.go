// Package errors defines the structured error taxonomy shared by the router,
// the config cache and the admin API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeConnection represents store connectivity errors
	ErrTypeConnection ErrorType = "connection"
	// ErrTypeValidation represents malformed admin payloads
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeConfig represents process configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeAuth represents missing or incorrect credentials
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeForbidden represents a caller outside the admin allow-list
	ErrTypeForbidden ErrorType = "forbidden"
	// ErrTypeConflict represents an etag mismatch on a guarded mutation
	ErrTypeConflict ErrorType = "conflict"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeUnavailable represents a missing configuration bundle
	ErrTypeUnavailable ErrorType = "config_unavailable"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeConnection, Message: msg, Cause: cause}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{Type: ErrTypeAuth, Message: msg}
}

// ForbiddenError creates a new forbidden error
func ForbiddenError(msg string) *AppError {
	return &AppError{Type: ErrTypeForbidden, Message: msg}
}

// ConflictError creates a new optimistic-concurrency conflict
func ConflictError(msg string) *AppError {
	return &AppError{Type: ErrTypeConflict, Message: msg}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{Type: ErrTypeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// UnavailableError signals that no configuration bundle can be served
func UnavailableError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeUnavailable, Message: msg, Cause: cause}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// IsType checks if an error, or any error it wraps, is an AppError of a specific type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ErrTypeInternal
	}

	return appErr.Type
}

// HTTPStatus maps an error to the status code the admin API answers with
func HTTPStatus(err error) int {
	switch GetType(err) {
	case "":
		return http.StatusOK
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeAuth:
		return http.StatusUnauthorized
	case ErrTypeForbidden:
		return http.StatusForbidden
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeConflict:
		return http.StatusPreconditionFailed
	case ErrTypeUnavailable, ErrTypeConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the payload of the admin API error envelope
type ErrorBody struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorResponse is the admin API error envelope: {"error": {...}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds the envelope for err. Causes of non-AppErrors and
// internal errors are not exposed.
func NewErrorResponse(err error) ErrorResponse {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Type == ErrTypeInternal {
		return ErrorResponse{Error: ErrorBody{Type: ErrTypeInternal, Message: "internal error"}}
	}
	return ErrorResponse{Error: ErrorBody{
		Type:    appErr.Type,
		Message: appErr.Message,
		Details: appErr.Context,
	}}
}
