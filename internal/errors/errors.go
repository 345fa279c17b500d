package errors

import (
	"fmt"
)

// IndexdError is the structured error type for indexd.
// It provides rich context for error handling, logging, and operator
// presentation.
type IndexdError struct {
	// Code is the unique error code (e.g., "ERR_103_UNKNOWN_INDEXER").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Queue, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *IndexdError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexdError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with IndexdError.
func (e *IndexdError) Is(target error) bool {
	if t, ok := target.(*IndexdError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexdError) WithDetail(key, value string) *IndexdError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new IndexdError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *IndexdError {
	return &IndexdError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new IndexdError with a formatted message.
func Newf(code string, format string, args ...any) *IndexdError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an IndexdError from an existing error.
// The error's message becomes the IndexdError message.
func Wrap(code string, err error) *IndexdError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a fatal configuration error.
func ConfigError(message string, cause error) *IndexdError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a storage-related error.
func StorageError(message string, cause error) *IndexdError {
	return New(ErrCodeStorageQuery, message, cause)
}

// SubmissionError creates a job-submission error.
func SubmissionError(message string, cause error) *IndexdError {
	return New(ErrCodeSubmission, message, cause)
}

// FilterError creates a presence-filter error.
func FilterError(message string, cause error) *IndexdError {
	return New(ErrCodeFilterFailed, message, cause)
}

// IsFatal reports whether err is a fatal (configuration-time) error.
func IsFatal(err error) bool {
	if e, ok := err.(*IndexdError); ok {
		return e.Severity == SeverityFatal
	}
	return false
}
