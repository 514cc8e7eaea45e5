package api

import (
	"errors"
	"net/http"

	"github.com/good-yellow-bee/eventalerts/internal/alerting"
	"github.com/good-yellow-bee/eventalerts/internal/fetcher"
	"github.com/good-yellow-bee/eventalerts/internal/models"
	"github.com/good-yellow-bee/eventalerts/internal/notifier"
	"github.com/good-yellow-bee/eventalerts/internal/storage"
)

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotConfigured    = "NOT_CONFIGURED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUpstreamError    = "UPSTREAM_ERROR"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
)

// Standard errors
var (
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrPollInFlight = &Error{
		Code:    ErrCodeConflict,
		Message: "A poll cycle is already running",
		Status:  http.StatusConflict,
	}

	ErrNotConfigured = &Error{
		Code:    ErrCodeNotConfigured,
		Message: "Alert settings have not been configured",
		Status:  http.StatusConflict,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error with custom message.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error with custom message.
func NewNotFound(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// FromError maps a domain error to its API error. Unknown errors become
// ErrInternalServer so internal details are not leaked.
func FromError(err error) *Error {
	var apiErr *Error
	var cfgErr *models.ConfigError
	var fetchErr *fetcher.FetchError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &cfgErr):
		return NewValidationError(cfgErr.Error())
	case errors.Is(err, alerting.ErrPollInFlight):
		return ErrPollInFlight
	case errors.Is(err, alerting.ErrNotConfigured):
		return ErrNotConfigured
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFound("Event not found")
	case errors.Is(err, notifier.ErrUnknownNotification):
		return NewNotFound("Notification not found")
	case errors.Is(err, notifier.ErrUnknownButton):
		return NewBadRequest(err.Error())
	case errors.As(err, &fetchErr):
		return &Error{Code: ErrCodeUpstreamError, Message: fetchErr.Error(), Status: http.StatusBadGateway}
	default:
		return ErrInternalServer
	}
}
