package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmd_ValidConfig(t *testing.T) {
	// Given: a valid configuration
	path := writeConfig(t, "")

	// When: validating it
	res := runCLI(t, "validate", "-c", path)

	// Then: it reports success and a summary
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, path+" is valid")
	assert.Contains(t, res.stdout, "source logs, split on ts as YYYYmmdd")
}

func TestValidateCmd_InvalidConfig(t *testing.T) {
	// Given: two invalid keys
	path := writeConfig(t, "[query]\nused_query = yes\ngte = 2024-02-01\nlte = 2024-01-01\n")

	// When: validating it
	res := runCLI(t, "validate", "-c", path)

	// Then: exit 2 naming the offending field
	assert.Equal(t, ExitConfig, res.code)
	assert.Contains(t, res.stderr, "gte must not be after lte")
	assert.Contains(t, res.stderr, "ERR_102_CONFIG_INVALID")
	assert.Empty(t, res.stdout)
}
