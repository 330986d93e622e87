package errors

import (
	"errors"
	"fmt"
)

// SplitError is the structured error type for splitdex.
// It carries enough context to decide whether a failure is retried,
// recorded in the run report, or aborts the run.
type SplitError struct {
	// Code is the unique error code (e.g., "ERR_102_CONFIG_INVALID").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Transient, Data, Pipeline).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *SplitError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SplitError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *SplitError) Is(target error) bool {
	if t, ok := target.(*SplitError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SplitError) WithDetail(key, value string) *SplitError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
func (e *SplitError) WithSuggestion(suggestion string) *SplitError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SplitError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SplitError {
	return &SplitError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SplitError from an existing error.
// The error's message becomes the SplitError message.
func Wrap(code string, err error) *SplitError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates an error for an invalid or missing configuration field.
func ConfigError(message string, cause error) *SplitError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// TransientError creates a retryable I/O error.
func TransientError(message string, cause error) *SplitError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// TimeoutError creates a retryable timeout error.
func TimeoutError(message string, cause error) *SplitError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// DateParseError creates an error for an unparseable split-field value.
func DateParseError(message string, cause error) *SplitError {
	return New(ErrCodeDateParse, message, cause)
}

// BatchFailure creates an error for a batch that failed after all retries.
func BatchFailure(message string, cause error) *SplitError {
	return New(ErrCodeBatchFailed, message, cause)
}

// FatalScanError creates an error for an unrecoverable source read.
func FatalScanError(message string, cause error) *SplitError {
	return New(ErrCodeScanFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SplitError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// It looks through wrapped errors for a SplitError with Retryable set.
func IsRetryable(err error) bool {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run.
func IsFatal(err error) bool {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SplitError.
// Returns empty string if not a SplitError.
func GetCode(err error) string {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SplitError.
// Returns empty string if not a SplitError.
func GetCategory(err error) Category {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
