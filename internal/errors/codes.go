// Package errors provides structured error handling for dsh.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and IO errors
//   - 3XX: Catalogue and network errors
//   - 4XX: Validation and parse errors
//   - 5XX: Internal errors
//
// The package also owns failure classification (Kind) and the retry
// handler used by ingestion.
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates database, index and disk errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates catalogue and network errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates malformed input or records.
	CategoryValidation Category = "VALIDATION"
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
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageUnavailable = "ERR_201_STORAGE_UNAVAILABLE"
	ErrCodeStorageWrite       = "ERR_202_STORAGE_WRITE"
	ErrCodeCorruptIndex       = "ERR_203_CORRUPT_INDEX"
	ErrCodeCheckpoint         = "ERR_204_CHECKPOINT"

	// Catalogue / network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRateLimited        = "ERR_303_RATE_LIMITED"
	ErrCodeRecordNotFound     = "ERR_304_RECORD_NOT_FOUND"
	ErrCodeUpstreamRejected   = "ERR_305_UPSTREAM_REJECTED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidRecord     = "ERR_402_INVALID_RECORD"
	ErrCodeParseFailed       = "ERR_403_PARSE_FAILED"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeDimensionMismatch = "ERR_405_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
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
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeConfigInvalid:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeRateLimited,
		ErrCodeStorageUnavailable:
		return true
	default:
		return false
	}
}
