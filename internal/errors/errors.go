// Package errors defines structured errors for the retrieval service.
// Every error carries a stable code, a category derived from that code,
// and enough context for operators to act on log lines without reading
// source.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Severity indicates operational impact.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category groups error codes by subsystem.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryStorage    Category = "storage"
	CategoryPipeline   Category = "pipeline"
	CategoryExternal   Category = "external"
	CategoryConfig     Category = "config"
	CategoryInternal   Category = "internal"
)

// RetrievalError is the error type returned across package boundaries.
type RetrievalError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Retryable  bool
	Suggestion string
	Details    map[string]any
	Cause      error
}

// New builds an error for the given code. The category is derived from
// the code's leading digit group.
func New(code, message string) *RetrievalError {
	return &RetrievalError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: SeverityError,
	}
}

// Wrap attaches a cause.
func Wrap(code, message string, cause error) *RetrievalError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithDetail adds a context field and returns the error for chaining.
func (e *RetrievalError) WithDetail(key string, value any) *RetrievalError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithSeverity overrides the default severity.
func (e *RetrievalError) WithSeverity(s Severity) *RetrievalError {
	e.Severity = s
	return e
}

// WithRetryable marks the error as retryable.
func (e *RetrievalError) WithRetryable() *RetrievalError {
	e.Retryable = true
	return e
}

// WithSuggestion attaches an operator hint.
func (e *RetrievalError) WithSuggestion(s string) *RetrievalError {
	e.Suggestion = s
	return e
}

func (e *RetrievalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

// Is matches two RetrievalErrors by code, so sentinel instances defined
// in codes.go work with errors.Is regardless of attached details.
func (e *RetrievalError) Is(target error) bool {
	var t *RetrievalError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// categoryFromCode maps the code's number block to a category:
// 1xx validation, 2xx storage, 3xx pipeline, 4xx external, 5xx config.
func categoryFromCode(code string) Category {
	parts := strings.SplitN(code, "_", 3)
	if len(parts) < 2 || len(parts[1]) == 0 {
		return CategoryInternal
	}
	switch parts[1][0] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryStorage
	case '3':
		return CategoryPipeline
	case '4':
		return CategoryExternal
	case '5':
		return CategoryConfig
	default:
		return CategoryInternal
	}
}

// CodeOf extracts the code from any error in the chain, or "" when none
// carries one.
func CodeOf(err error) string {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsRetryable reports whether any error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}
