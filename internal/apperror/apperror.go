// Package apperror defines the typed errors shared by the flow engine,
// services and HTTP handlers.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the kind of failure.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized   ErrorType = "UNAUTHORIZED"
	ErrorTypeConflict       ErrorType = "CONFLICT"
	ErrorTypeInternal       ErrorType = "INTERNAL"
	ErrorTypeContentDefect  ErrorType = "CONTENT_DEFECT"
	ErrorTypePersistence    ErrorType = "PERSISTENCE"
	ErrorTypeUpload         ErrorType = "UPLOAD"
	ErrorTypeMalformedState ErrorType = "MALFORMED_STATE"
)

// AppError is an application error carrying its HTTP mapping.
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Cause      error     `json:"-"`
	HTTPStatus int       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func NewValidationError(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: fmt.Sprintf("%s not found", resource), HTTPStatus: http.StatusNotFound}
}

func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Type: ErrorTypeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

func NewConflictError(message string) *AppError {
	return &AppError{Type: ErrorTypeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

func NewInternalError(message string) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// NewContentDefectError reports a study definition that references a
// question which does not exist at navigation time.
func NewContentDefectError(format string, args ...any) *AppError {
	return &AppError{
		Type:       ErrorTypeContentDefect,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func NewPersistenceError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypePersistence,
		Message:    fmt.Sprintf("persistence operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NewUploadError(err error) *AppError {
	return &AppError{
		Type:       ErrorTypeUpload,
		Message:    "upload failed",
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

func NewMalformedStateError(pingID string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeMalformedState,
		Message:    fmt.Sprintf("stored session state for ping %s cannot be restored", pingID),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// GetAppError extracts an AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

func IsNotFound(err error) bool       { return IsType(err, ErrorTypeNotFound) }
func IsValidation(err error) bool     { return IsType(err, ErrorTypeValidation) }
func IsContentDefect(err error) bool  { return IsType(err, ErrorTypeContentDefect) }
func IsMalformedState(err error) bool { return IsType(err, ErrorTypeMalformedState) }

// HTTPStatus returns the status to answer with for err. Errors that are
// not AppErrors map to 500.
func HTTPStatus(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
