// Package errors provides structured error handling for indexd.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (fatal, construction-time)
//   - 2XX: Storage errors
//   - 3XX: Queue/submission errors
//   - 4XX: Filter/validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates indexer-storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryQueue indicates job-queue submission errors.
	CategoryQueue Category = "QUEUE"
	// CategoryFilter indicates presence-filter and validation errors.
	CategoryFilter Category = "FILTER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeUnknownIndexer   = "ERR_103_UNKNOWN_INDEXER"
	ErrCodeToolUnresolvable = "ERR_104_TOOL_UNRESOLVABLE"

	// Storage errors (200-299)
	ErrCodeStorageOpen   = "ERR_201_STORAGE_OPEN"
	ErrCodeStorageLocked = "ERR_202_STORAGE_LOCKED"
	ErrCodeStorageQuery  = "ERR_203_STORAGE_QUERY"
	ErrCodeStorageClosed = "ERR_204_STORAGE_CLOSED"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"

	// Queue errors (300-399)
	ErrCodeQueueConnect = "ERR_301_QUEUE_CONNECT"
	ErrCodeSubmission   = "ERR_302_SUBMISSION_REJECTED"
	ErrCodeJobInvalid   = "ERR_303_JOB_INVALID"

	// Filter errors (400-499)
	ErrCodeFilterFailed = "ERR_401_FILTER_FAILED"
	ErrCodeInvalidInput = "ERR_402_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode derives the category from the numeric range of a code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryQueue
	case '4':
		return CategoryFilter
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the severity from the code.
// Configuration errors are fatal: they prevent construction entirely.
func severityFromCode(code string) Severity {
	if categoryFromCode(code) == CategoryConfig {
		return SeverityFatal
	}
	return SeverityError
}
