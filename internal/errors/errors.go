// Package errors provides structured error types for the Tidemark pipeline.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by failure class.
type ErrorCategory string

const (
	// ErrCategoryValidation marks malformed input. Rejected at ingestion,
	// counted, never retried.
	ErrCategoryValidation ErrorCategory = "VALIDATION"

	// ErrCategoryStore marks store-level failures. Transient ones are
	// retryable with backoff on the ingestion path.
	ErrCategoryStore ErrorCategory = "STORE"

	// ErrCategoryInvariant marks detected correctness violations (a
	// duplicate surviving merge, an aggregate diverging from its source).
	// Never silently corrected; surfaced as critical health records.
	ErrCategoryInvariant ErrorCategory = "INVARIANT"

	// ErrCategoryMonitor marks evaluator-run failures, isolated per
	// evaluator.
	ErrCategoryMonitor ErrorCategory = "MONITOR"

	// ErrCategoryConfig marks configuration errors. Fatal at process
	// start, not recoverable at runtime.
	ErrCategoryConfig ErrorCategory = "CONFIG"
)

// Error codes for each category.
const (
	// Validation codes
	CodeMissingIdentifier = "MISSING_IDENTIFIER"
	CodeMissingTimestamp  = "MISSING_TIMESTAMP"
	CodeUnknownEventType  = "UNKNOWN_EVENT_TYPE"
	CodeMalformedRecord   = "MALFORMED_RECORD"

	// Store codes
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeScanFailed       = "SCAN_FAILED"

	// Invariant codes
	CodeDuplicateSurvived = "DUPLICATE_SURVIVED"
	CodeAggregateMismatch = "AGGREGATE_MISMATCH"

	// Monitor codes
	CodeEvaluatorDeadline = "EVALUATOR_DEADLINE"
	CodeEvaluatorPanic    = "EVALUATOR_PANIC"

	// Config codes
	CodeInvalidThreshold = "INVALID_THRESHOLD"
	CodeUnknownMetric    = "UNKNOWN_METRIC"
	CodeInvalidConfig    = "INVALID_CONFIG"
)

// PipelineError is the structured error type used throughout the system.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// IsValidation reports whether the error chain is a validation rejection.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable. Only transient store
// failures qualify; validation, invariant, and config errors never do.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStore && code == CodeStoreUnavailable:
		return true
	case category == ErrCategoryStore && code == CodeWriteFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *PipelineError {
	return New(ErrCategoryValidation, code, message)
}

func NewStoreError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewInvariantError(code, message string) *PipelineError {
	return New(ErrCategoryInvariant, code, message)
}

func NewMonitorError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryMonitor, code, message, cause)
}

func NewConfigError(code, message string) *PipelineError {
	return New(ErrCategoryConfig, code, message)
}
