package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesDetailsHintAndCode(t *testing.T) {
	// Given: a config error with field detail and suggestion
	err := ConfigError("batch_size must be less than equal to 1000", nil).
		WithDetail("field", "engine.batch_size").
		WithSuggestion("set batch_size between 1 and 1000")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: all parts are present
	assert.Contains(t, result, "Error: batch_size must be less than equal to 1000")
	assert.Contains(t, result, "field: engine.batch_size")
	assert.Contains(t, result, "Hint: set batch_size between 1 and 1000")
	assert.Contains(t, result, "Code: ERR_102_CONFIG_INVALID")
}

func TestFormatForCLI_WrappedAndPlainErrors(t *testing.T) {
	wrapped := fmt.Errorf("run aborted: %w", FatalScanError("scroll expired", nil))
	assert.Contains(t, FormatForCLI(wrapped), "Code: ERR_502_SCAN_FAILED")

	plain := FormatForCLI(errors.New("boom"))
	assert.Contains(t, plain, "Error: boom")
	assert.Contains(t, plain, ErrCodeInternal)

	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	err := TransientError("cluster unavailable", errors.New("503"))

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeNetworkUnavailable, decoded["code"])
	assert.Equal(t, "TRANSIENT", decoded["category"])
	assert.Equal(t, "503", decoded["cause"])
	assert.Equal(t, true, decoded["retryable"])
}

func TestFormatForLog(t *testing.T) {
	assert.Nil(t, FormatForLog(nil))
	assert.Equal(t, map[string]any{"error": "plain"}, FormatForLog(errors.New("plain")))

	fields := FormatForLog(BatchFailure("batch failed", nil).WithDetail("index", "logs-20240101"))
	assert.Equal(t, ErrCodeBatchFailed, fields["error_code"])
	assert.Equal(t, "logs-20240101", fields["detail_index"])
}
