package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrValidation:
		return http.StatusBadRequest
	case ErrSourceUnavailable, ErrPersistenceUnavailable:
		return http.StatusServiceUnavailable
	case ErrDeliveryFailure:
		return http.StatusBadGateway
	case ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrForbidden
	ErrInternal
	ErrSourceUnavailable
	ErrPersistenceUnavailable
	ErrValidation
	ErrDeliveryFailure
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// SourceUnavailable marks one notification source adapter as failed.
func SourceUnavailable(source string, err error) *AppError {
	return &AppError{
		Code:    ErrSourceUnavailable,
		Message: fmt.Sprintf("source %s unavailable", source),
		Err:     err,
	}
}

// PersistenceUnavailable wraps a cooldown store failure.
func PersistenceUnavailable(op string, err error) *AppError {
	return &AppError{
		Code:    ErrPersistenceUnavailable,
		Message: fmt.Sprintf("store %s failed", op),
		Err:     err,
	}
}

// Validation reports a malformed candidate or outbound payload.
func Validation(message string, err error) *AppError {
	return &AppError{
		Code:    ErrValidation,
		Message: message,
		Err:     err,
	}
}

// DeliveryFailure reports a channel level failure.
func DeliveryFailure(channel string, err error) *AppError {
	return &AppError{
		Code:    ErrDeliveryFailure,
		Message: fmt.Sprintf("%s delivery failed", channel),
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// HasCode reports whether err, or anything it wraps, is an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	if appErr.Code == code {
		return true
	}
	return appErr.Err != nil && HasCode(appErr.Err, code)
}
