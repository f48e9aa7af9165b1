package errors

import (
	"errors"
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

// Is matches on code so errors.Is(err, ErrForbiddenKind) works for any
// Forbidden error regardless of message or cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// StatusCode is consumed by the HTTP error middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadRequest:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
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
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrIndeterminate
	ErrAuditWrite
)

// Sentinels for errors.Is comparisons.
var (
	ErrNotFoundKind      = &AppError{Code: ErrNotFound}
	ErrUnauthorizedKind  = &AppError{Code: ErrUnauthorized}
	ErrForbiddenKind     = &AppError{Code: ErrForbidden}
	ErrIndeterminateKind = &AppError{Code: ErrIndeterminate}
	ErrAuditWriteKind    = &AppError{Code: ErrAuditWrite}
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

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "authentication required",
		Err:     err,
	}
}

// Forbidden never carries the permission name in its message.
func Forbidden(err error) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: "forbidden",
		Err:     err,
	}
}

// Indeterminate reports a scoped decision consumed without ownership data.
// It is a programming error and surfaces as a 500.
func Indeterminate(permission string) *AppError {
	return &AppError{
		Code:    ErrIndeterminate,
		Message: "internal server error",
		Err:     fmt.Errorf("indeterminate decision for %s treated as final", permission),
	}
}

// AuditWrite wraps a failed audit append. It is never returned to the caller
// of a business operation.
func AuditWrite(err error) *AppError {
	return &AppError{
		Code:    ErrAuditWrite,
		Message: "audit write failed",
		Err:     err,
	}
}

// Code extracts the AppError code, or ErrInternal for foreign errors.
func Code(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
