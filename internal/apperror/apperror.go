// Package apperror provides typed application errors.
//
// Every error carries a Code that classifies it:
//   - CONFIG: fatal misconfiguration, detected before serving queries
//   - VALIDATION: bad input; reported back to the calling agent
//   - NOT_FOUND: lookup miss (unknown identifier, absent chunk)
//   - CONSISTENCY: index and chunk store have diverged
//   - TRANSIENT: I/O failure that may succeed on retry
//   - INTERNAL: anything else
//
// AppError supports errors.Is / errors.As through Unwrap.
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeConfig      = "CONFIG"
	CodeValidation  = "VALIDATION"
	CodeNotFound    = "NOT_FOUND"
	CodeConsistency = "CONSISTENCY"
	CodeTransient   = "TRANSIENT"
	CodeInternal    = "INTERNAL"
)

// AppError is a classified application error.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error formats the error as "[CODE] message: cause".
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code, so errors.Is(err, &AppError{Code: CodeNotFound})
// works without comparing messages.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Code == e.Code
}

// New creates an AppError without a cause.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError around an existing error.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// HTTPStatus maps the code to an HTTP status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTransient:
		return http.StatusServiceUnavailable
	case CodeConsistency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes the error as a JSON body with the matching status.
func (e *AppError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   e.Code,
		"message": e.Message,
	})
}

// Config creates a CONFIG error.
func Config(format string, args ...any) *AppError {
	return New(CodeConfig, fmt.Sprintf(format, args...))
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...any) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...any) *AppError {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

// Consistency creates a CONSISTENCY error.
func Consistency(format string, args ...any) *AppError {
	return New(CodeConsistency, fmt.Sprintf(format, args...))
}

// Transient wraps a retryable I/O error.
func Transient(message string, err error) *AppError {
	return Wrap(CodeTransient, message, err)
}

// Internal wraps an unclassified error.
func Internal(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with code.
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsRetryable reports whether err is worth retrying.
// Validation, config, lookup and consistency errors never are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeTransient:
		return true
	case CodeConfig, CodeValidation, CodeNotFound, CodeConsistency:
		return false
	}
	return false
}
