// Package apierrors defines the error taxonomy for the client runtime.
//
// DESIGN: Every failure flowing out of the transport or the executor is
// representable as an *APIError carrying an explicit Category. Callers and
// the retry layer never inspect raw strings; they go through Classify.
//
// FILES:
//   - errors.go:   APIError type and category enum
//   - classify.go: Classification of arbitrary failures into categories
package apierrors

import (
	"errors"
	"fmt"
)

// Category buckets a failure for retry and surfacing decisions.
type Category string

const (
	CategoryNetwork        Category = "NETWORK"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategoryValidation     Category = "VALIDATION"
	CategoryRateLimit      Category = "RATE_LIMIT"
	CategoryServer         Category = "SERVER"
	CategoryClient         Category = "CLIENT"
	CategoryUnknown        Category = "UNKNOWN"
)

// Vendor extension codes that are meaningful to the error observer.
const (
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeThrottled         = "THROTTLED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeSecurityRejection = "SECURITY_REJECTION"
)

// APIError is the typed error surfaced by the client runtime.
// Category is authoritative once set; Classify returns it unchanged.
type APIError struct {
	Category   Category
	Code       string // Vendor extension code, if any
	StatusCode int    // HTTP status, 0 when not applicable
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Category)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches two APIErrors by category, so callers can use errors.Is with
// a bare &APIError{Category: ...} probe.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *APIError
	if errors.As(target, &t) {
		return e.Category == t.Category
	}
	return false
}

// NewSecurityRejection builds the dedicated non-retryable error for the
// distinguished transport rejection status.
func NewSecurityRejection(statusCode int) *APIError {
	return &APIError{
		Category:   CategoryClient,
		Code:       CodeSecurityRejection,
		StatusCode: statusCode,
		Message:    "request rejected by upstream security screening",
	}
}
