package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrNilDependency is wrapped by constructors when a required collaborator is missing.
	ErrNilDependency = stderrors.New("nil dependency")

	// ErrEmptyQuery is returned by search for blank query input.
	ErrEmptyQuery = stderrors.New("query is empty")

	// ErrValidation marks a record that can never be stored as-is.
	ErrValidation = stderrors.New("validation failed")
)

// DSHError is the structured error type for dsh.
// It provides rich context for error handling, logging, and user presentation.
type DSHError struct {
	// Code is the unique error code (e.g., "ERR_304_RECORD_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *DSHError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *DSHError) Unwrap() error {
	return e.Cause
}

// Is matches another DSHError by code.
func (e *DSHError) Is(target error) bool {
	if t, ok := target.(*DSHError); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind reports how the retry handler should treat this error.
// Rate limiting has its own code so it keeps its longer backoff.
func (e *DSHError) Kind() Kind {
	switch {
	case e.Code == ErrCodeRateLimited:
		return KindRateLimited
	case e.Retryable:
		return KindTransient
	default:
		return KindPermanent
	}
}

// WithDetail adds a key-value detail to the error.
func (e *DSHError) WithDetail(key, value string) *DSHError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *DSHError) WithSuggestion(suggestion string) *DSHError {
	e.Suggestion = suggestion
	return e
}

// New creates a new DSHError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *DSHError {
	return &DSHError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a DSHError from an existing error.
func Wrap(code string, err error) *DSHError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *DSHError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a storage error. Storage outages are retryable.
func StorageError(message string, cause error) *DSHError {
	return New(ErrCodeStorageUnavailable, message, cause)
}

// ValidationError creates a validation error. It also matches ErrValidation.
func ValidationError(message string, cause error) *DSHError {
	if cause == nil {
		cause = ErrValidation
	} else {
		cause = fmt.Errorf("%w: %w", ErrValidation, cause)
	}
	return New(ErrCodeInvalidRecord, message, cause)
}

// ParseError creates a parse error for malformed catalogue content.
func ParseError(message string, cause error) *DSHError {
	return New(ErrCodeParseFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *DSHError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable according to Classify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err) != KindPermanent
}

// GetCode extracts the error code from a DSHError anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var de *DSHError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}
