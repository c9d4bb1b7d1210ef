// Package errors provides a lightweight structured error type (EngineError)
// for category-based classification of discovery and store failures.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of an engine error for classification.
type ErrorCategory string

const (
	// Non-fatal per-record failures during scanning.
	CategoryParse ErrorCategory = "parse"

	// Query tool / database unavailable; advances the extraction fallback chain.
	CategoryTool ErrorCategory = "tool"

	// Workspace target vanished; routed to orphan policy, never a hard error.
	CategoryTarget ErrorCategory = "target"

	// Archive/delete/rewrite of an on-disk store record failed.
	CategoryStore ErrorCategory = "store"

	// No active editor could be determined.
	CategoryResolution ErrorCategory = "resolution"

	// User-facing configuration and input errors.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Runtime and infrastructure errors.
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"   // Operation failed
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// EngineError is a structured error with category, severity, and context.
type EngineError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for EngineError.
type ContextFields map[string]any

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *EngineError) WithContext(key string, value any) *EngineError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new EngineError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *EngineError {
	return &EngineError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new EngineError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *EngineError {
	return &EngineError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns
// CategoryInternal if it is not an EngineError.
func GetCategory(err error) ErrorCategory {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return CategoryInternal
}
