// Package apperrors provides the unified error taxonomy used across Actifix.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of error from spec section 7.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeStorageNotFound     Code = "STORAGE_NOT_FOUND"
	CodeStoragePermission   Code = "STORAGE_PERMISSION"
	CodeStorageError        Code = "STORAGE_ERROR"
	CodeDuplicateTicket     Code = "DUPLICATE_TICKET"
	CodeThrottleExceeded    Code = "THROTTLE_EXCEEDED"
	CodeRateLimitExceeded   Code = "RATE_LIMIT_EXCEEDED"
	CodeProviderError       Code = "PROVIDER_ERROR"
	CodeLockContention      Code = "LOCK_CONTENTION"
	CodeFallbackQueued      Code = "FALLBACK_QUEUED"
	CodeModuleUnregisterTTL Code = "MODULE_UNREGISTER_TIMEOUT"
	CodeInternal            Code = "INTERNAL"
)

// AppError is a structured error with a code, message and HTTP status.
type AppError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a key/value pair of additional context.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func Wrap(code Code, message string, httpStatus int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func StorageNotFound(resource, id string) *AppError {
	return New(CodeStorageNotFound, "resource not found", http.StatusNotFound).
		WithDetail("resource", resource).WithDetail("id", id)
}

func StoragePermission(op string, err error) *AppError {
	return Wrap(CodeStoragePermission, "storage permission denied", http.StatusForbidden, err).
		WithDetail("operation", op)
}

func StorageError(op string, err error) *AppError {
	return Wrap(CodeStorageError, "storage operation failed", http.StatusInternalServerError, err).
		WithDetail("operation", op)
}

func ThrottleExceeded(priority string, window string) *AppError {
	return New(CodeThrottleExceeded, "ticket creation throttled", http.StatusTooManyRequests).
		WithDetail("priority", priority).WithDetail("window", window)
}

func RateLimitExceeded(provider string, window string) *AppError {
	return New(CodeRateLimitExceeded, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetail("provider", provider).WithDetail("window", window)
}

func ProviderError(provider string, err error) *AppError {
	return Wrap(CodeProviderError, "AI provider call failed", http.StatusBadGateway, err).
		WithDetail("provider", provider)
}

func Internal(message string, err error) *AppError {
	return Wrap(CodeInternal, message, http.StatusInternalServerError, err)
}

// As extracts an *AppError from an error chain, if present.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HTTPStatus returns the status code to report for err, defaulting to 500.
func HTTPStatus(err error) int {
	if appErr := As(err); appErr != nil {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
