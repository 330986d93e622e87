// Package errors provides structured error handling for splitdex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 3XX: Transient I/O errors (network, timeout, service unavailable)
//   - 4XX: Data errors (unparseable split-field values)
//   - 5XX: Pipeline errors (failed batches, fatal scans, internal)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryTransient indicates retry-recoverable I/O errors.
	CategoryTransient Category = "TRANSIENT"
	// CategoryData indicates malformed source data.
	CategoryData Category = "DATA"
	// CategoryPipeline indicates split pipeline failures.
	CategoryPipeline Category = "PIPELINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, the run must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigParse    = "ERR_103_CONFIG_PARSE"

	// Transient I/O errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeServiceError       = "ERR_303_SERVICE_ERROR"

	// Data errors (400-499)
	ErrCodeDateParse = "ERR_401_DATE_PARSE"

	// Pipeline errors (500-599)
	ErrCodeBatchFailed = "ERR_501_BATCH_FAILED"
	ErrCodeScanFailed  = "ERR_502_SCAN_FAILED"
	ErrCodeInternal    = "ERR_503_INTERNAL"
	ErrCodeRunLocked   = "ERR_504_RUN_LOCKED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryPipeline
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '3':
		return CategoryTransient
	case '4':
		return CategoryData
	default:
		return CategoryPipeline
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid, ErrCodeConfigParse, ErrCodeScanFailed, ErrCodeRunLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) || code == ErrCodeDateParse {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeServiceError:
		return true
	default:
		return false
	}
}
