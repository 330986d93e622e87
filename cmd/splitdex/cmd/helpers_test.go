package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/splitdex/internal/config"
	"github.com/Aman-CERP/splitdex/internal/store"
)

const baseConfig = `[elastic]
es_url = http://localhost:9200
es_timeout = 5
es_index_name = logs
es_field = ts

[engine]
batch_size = 10
max_retry_connection = 2
format_date = YYYYmmdd
backoff_initial = 1ms
backoff_max = 1ms
`

// jan1 is 2024-01-01T00:00:00Z in epoch seconds.
const jan1 = int64(1704067200)

// writeConfig writes baseConfig plus extra to a temp file and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(baseConfig+extra), 0o600))
	return path
}

// useEngine routes run through an in-memory cluster for the test.
func useEngine(t *testing.T, m *store.Memory) {
	t.Helper()
	prev := newSearchEngine
	newSearchEngine = func(*config.Config, *slog.Logger) (store.SearchEngine, error) {
		return m, nil
	}
	t.Cleanup(func() { newSearchEngine = prev })

	dir := t.TempDir()
	prevDir := lockDir
	lockDir = func() string { return dir }
	t.Cleanup(func() { lockDir = prevDir })
}

type result struct {
	stdout string
	stderr string
	code   int
}

// runCLI executes the root command with args and captures both streams.
func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	code := execute(context.Background(), root, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), code: code}
}

func doc(id string, ts int64) store.Document {
	return store.Document{ID: id, Source: map[string]any{"ts": ts, "msg": "m-" + id}}
}
