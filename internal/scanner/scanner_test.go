package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/query"
	"github.com/Aman-CERP/splitdex/internal/store"
)

type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return ctx.Err()
}

func seeded(t *testing.T, n int) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	docs := make([]store.Document, n)
	for i := range docs {
		docs[i] = store.Document{ID: fmt.Sprintf("doc-%03d", i), Source: map[string]any{"ts": int64(1704067200 + i)}}
	}
	m.Seed("src", docs...)
	return m
}

func newScanner(t *testing.T, m store.SearchEngine, pageSize, attempts int, sleeper *fakeSleeper) *Scanner {
	t.Helper()
	req, err := query.Build(nil, "ts")
	require.NoError(t, err)

	s, err := New(m, req, Options{
		Index:    "src",
		PageSize: pageSize,
		Retry: serrors.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2,
			Sleep:        sleeper.Sleep,
		},
	})
	require.NoError(t, err)
	return s
}

func TestScan_EmitsEveryDocumentInOrder(t *testing.T) {
	// Given: 25 documents and a page size of 10
	m := seeded(t, 25)
	s := newScanner(t, m, 10, 3, &fakeSleeper{})

	// When: scanning to exhaustion
	var ids []string
	err := s.Scan(context.Background(), func(d store.Document) error {
		ids = append(ids, d.ID)
		return nil
	})

	// Then: all 25 come back once, in order, over three page reads
	require.NoError(t, err)
	require.Len(t, ids, 25)
	assert.Equal(t, "doc-000", ids[0])
	assert.Equal(t, "doc-024", ids[24])
	assert.Equal(t, 1, m.Calls(store.OpSearch))
	assert.Equal(t, 2, m.Calls(store.OpAdvance))

	searches := m.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, 10, searches[0].Size)
	assert.Equal(t, DefaultKeepAlive, searches[0].KeepAlive)
	assert.JSONEq(t, `{"query":{"match_all":{}},"sort":[{"ts":{"order":"asc"}}]}`, string(searches[0].Body))
}

func TestNext_ThreadsCursorExplicitly(t *testing.T) {
	m := seeded(t, 3)
	s := newScanner(t, m, 2, 1, &fakeSleeper{})
	ctx := context.Background()

	first, err := s.Next(ctx, Start)
	require.NoError(t, err)
	assert.Len(t, first.Docs, 2)
	assert.False(t, first.Done())
	assert.NotEmpty(t, first.Cursor.ID())

	second, err := s.Next(ctx, first.Cursor)
	require.NoError(t, err)
	assert.Len(t, second.Docs, 1)
	assert.True(t, second.Done())

	again, err := s.Next(ctx, second.Cursor)
	require.NoError(t, err)
	assert.Empty(t, again.Docs)
	assert.True(t, again.Done())
}

func TestNext_RetriesPageReads(t *testing.T) {
	// Given: the first two advances fail transiently
	m := seeded(t, 4)
	m.FailNext(store.OpAdvance, 2, nil)
	sleeper := &fakeSleeper{}
	s := newScanner(t, m, 2, 3, sleeper)

	// When: scanning
	count := 0
	err := s.Scan(context.Background(), func(store.Document) error { count++; return nil })

	// Then: the scan completes after two backoffs
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestNext_ExhaustedRetriesAreFatal(t *testing.T) {
	// Given: the initial search always fails
	m := seeded(t, 4)
	m.FailNext(store.OpSearch, 3, nil)
	s := newScanner(t, m, 2, 3, &fakeSleeper{})

	// When: reading the first page
	_, err := s.Next(context.Background(), Start)

	// Then: a fatal scan error after exactly three attempts
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeScanFailed, serrors.GetCode(err))
	assert.True(t, serrors.IsFatal(err))
	assert.Equal(t, 3, m.Calls(store.OpSearch))
}

func TestNext_CanceledContext(t *testing.T) {
	m := seeded(t, 4)
	s := newScanner(t, m, 2, 3, &fakeSleeper{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx, Start)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, serrors.IsFatal(err))
}

func TestScan_CallbackErrorStops(t *testing.T) {
	m := seeded(t, 10)
	s := newScanner(t, m, 3, 1, &fakeSleeper{})
	stop := errors.New("stop")

	seen := 0
	err := s.Scan(context.Background(), func(store.Document) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, seen)
}

func TestClose_ClearsCursor(t *testing.T) {
	m := seeded(t, 5)
	s := newScanner(t, m, 2, 1, &fakeSleeper{})
	ctx := context.Background()

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, m.Calls(store.OpClearCursor))

	_, err := s.Next(ctx, Start)
	require.NoError(t, err)
	assert.Equal(t, 1, m.OpenCursors())

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 0, m.OpenCursors())
	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, m.Calls(store.OpClearCursor))
}
