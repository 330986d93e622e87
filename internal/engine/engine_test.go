package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/splitdex/internal/async"
	"github.com/Aman-CERP/splitdex/internal/bucket"
	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/store"
)

// 2024-01-01T00:00:00Z
const jan1 = int64(1704067200)

const day = int64(86400)

type fakeSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	return ctx.Err()
}

func testConfig() *config.Config {
	return &config.Config{
		Elastic: config.ElasticConfig{
			URL:       "http://localhost:9200",
			Timeout:   time.Minute,
			IndexName: "logs",
			Field:     "ts",
		},
		Engine: config.EngineConfig{
			BatchSize:          10,
			MaxRetryConnection: 3,
			FormatDate:         bucket.FormatYearMonthDay,
			ScrollSize:         100,
			ScrollKeepAlive:    time.Minute,
			Workers:            1,
			InvalidPolicy:      config.InvalidFallback,
			InvalidSuffix:      config.DefaultInvalidSuffix,
			Timezone:           "UTC",
			BackoffInitial:     time.Second,
			BackoffMax:         30 * time.Second,
		},
	}
}

func seed(m *store.Memory, n int, tsOf func(i int) any) {
	docs := make([]store.Document, n)
	for i := range docs {
		docs[i] = store.Document{ID: fmt.Sprintf("doc-%03d", i), Source: map[string]any{"ts": tsOf(i), "n": i}}
	}
	m.Seed("logs", docs...)
}

func newEngine(t *testing.T, cfg *config.Config, m store.SearchEngine, sleeper *fakeSleeper) *Engine {
	t.Helper()
	e, err := New(cfg, Deps{
		Engine:           m,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep:            sleeper.Sleep,
		ProgressInterval: -1,
	})
	require.NoError(t, err)
	return e
}

func TestRun_SingleBucketBatches(t *testing.T) {
	// Given: 25 documents on the same day and batch_size 10
	m := store.NewMemory()
	seed(m, 25, func(i int) any { return jan1 + int64(i) })
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	// When: running the split
	report, err := e.Run(context.Background())

	// Then: three batches (10, 10, 5) land in one index and the run is Done
	require.NoError(t, err)
	assert.Equal(t, async.StateDone, report.State)
	assert.Equal(t, int64(25), report.Scanned)
	assert.Equal(t, int64(25), report.Written)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.BatchesFlushed)
	assert.Equal(t, 3, m.Calls(store.OpBulk))
	assert.True(t, report.Balanced())

	stats := report.Index("logs-20240101")
	require.NotNil(t, stats)
	assert.Equal(t, int64(25), stats.Written)
	assert.Equal(t, 3, stats.Batches)

	written := m.Docs("logs-20240101")
	require.Len(t, written, 25)
	assert.Equal(t, "doc-000", written[0].ID)
	assert.Equal(t, "doc-024", written[24].ID)
}

func TestRun_TransientWriteFailuresRecover(t *testing.T) {
	// Given: bulk fails twice then succeeds, three attempts allowed
	m := store.NewMemory()
	seed(m, 5, func(i int) any { return jan1 })
	m.FailNext(store.OpBulk, 2, nil)
	sleeper := &fakeSleeper{}
	e := newEngine(t, testConfig(), m, sleeper)

	// When: running
	report, err := e.Run(context.Background())

	// Then: the batch succeeds on the third attempt
	require.NoError(t, err)
	assert.Equal(t, 3, m.Calls(store.OpBulk))
	assert.Equal(t, int64(5), report.Written)
	assert.Zero(t, report.BatchesFailed)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestRun_PermanentBatchFailureDoesNotStopRun(t *testing.T) {
	// Given: two buckets, and the first batch's three attempts all fail
	m := store.NewMemory()
	seed(m, 20, func(i int) any {
		if i < 10 {
			return jan1
		}
		return jan1 + day
	})
	m.FailNext(store.OpBulk, 3, nil)
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	// When: running
	report, err := e.Run(context.Background())

	// Then: the first batch fails after exactly three attempts, the second lands
	require.NoError(t, err)
	assert.Equal(t, async.StateDone, report.State)
	assert.Equal(t, 4, m.Calls(store.OpBulk))
	assert.Equal(t, int64(10), report.Failed)
	assert.Equal(t, int64(10), report.Written)
	assert.Equal(t, 1, report.BatchesFailed)
	assert.True(t, report.Balanced())

	assert.Equal(t, 1, report.Index("logs-20240101").FailedBatches)
	assert.Empty(t, m.Docs("logs-20240101"))
	assert.Len(t, m.Docs("logs-20240102"), 10)
}

func TestRun_InvalidDateFallback(t *testing.T) {
	// Given: one document with an unparseable date
	m := store.NewMemory()
	seed(m, 5, func(i int) any {
		if i == 2 {
			return "not a date"
		}
		return jan1
	})
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	// When: running with the fallback policy
	report, err := e.Run(context.Background())

	// Then: it is written to the invalid index and the counts balance
	require.NoError(t, err)
	assert.Equal(t, int64(5), report.Scanned)
	assert.Equal(t, int64(4), report.Written)
	assert.Equal(t, int64(1), report.Invalid)
	assert.Equal(t, int64(1), report.InvalidWritten)
	assert.True(t, report.Balanced())

	invalid := m.Docs("logs-invalid")
	require.Len(t, invalid, 1)
	assert.Equal(t, "doc-002", invalid[0].ID)
}

func TestRun_InvalidDateFailPolicy(t *testing.T) {
	m := store.NewMemory()
	seed(m, 4, func(i int) any {
		if i%2 == 0 {
			return nil
		}
		return jan1
	})
	cfg := testConfig()
	cfg.Engine.InvalidPolicy = config.InvalidFail
	e := newEngine(t, cfg, m, &fakeSleeper{})

	report, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Invalid)
	assert.Equal(t, int64(2), report.InvalidFailed)
	assert.Equal(t, int64(2), report.Written)
	assert.True(t, report.Balanced())
	assert.NotContains(t, m.Indices(), "logs-invalid")
}

func TestRun_NestedFieldAndFormat(t *testing.T) {
	m := store.NewMemory()
	m.Seed("logs",
		store.Document{ID: "a", Source: map[string]any{"meta": map[string]any{"ts": "2024-03-05T10:00:00Z"}}},
		store.Document{ID: "b", Source: map[string]any{"meta": map[string]any{"ts": (jan1 + 40*day) * 1000}}},
	)
	cfg := testConfig()
	cfg.Elastic.Field = "meta.ts"
	cfg.Engine.FormatDate = bucket.FormatYearMonth
	e := newEngine(t, cfg, m, &fakeSleeper{})

	report, err := e.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, m.Docs("logs-202403"), 1)
	assert.Len(t, m.Docs("logs-202402"), 1)
	assert.Len(t, report.Indices, 2)
	assert.Equal(t, "logs-202402", report.Indices[0].Index)
}

func TestRun_IndexUnavailableFailsBatchOnly(t *testing.T) {
	// Given: the existence check fails for every attempt of the first batch
	m := store.NewMemory()
	seed(m, 20, func(i int) any { return jan1 })
	m.FailNext(store.OpIndexExists, 3, nil)
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	// When: running
	report, err := e.Run(context.Background())

	// Then: the first batch fails, the index is retried for the second
	require.NoError(t, err)
	assert.Equal(t, int64(10), report.Failed)
	assert.Equal(t, int64(10), report.Written)
	assert.Equal(t, 1, m.Calls(store.OpBulk))
	assert.True(t, report.Balanced())
}

func TestRun_FatalScanAborts(t *testing.T) {
	m := store.NewMemory()
	seed(m, 5, func(i int) any { return jan1 })
	m.FailNext(store.OpSearch, 3, nil)
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	report, err := e.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeScanFailed, serrors.GetCode(err))
	require.NotNil(t, report)
	assert.Equal(t, async.StateAborted, report.State)
	assert.NotEmpty(t, report.AbortCause)
	assert.Zero(t, m.Calls(store.OpBulk))
}

func TestRun_UnreachableClusterAborts(t *testing.T) {
	m := store.NewMemory()
	m.FailNext(store.OpPing, 3, nil)
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	report, err := e.Run(context.Background())

	require.Error(t, err)
	assert.True(t, serrors.IsFatal(err))
	assert.Equal(t, async.StateAborted, report.State)
	assert.Zero(t, m.Calls(store.OpSearch))
}

func TestRun_CancelDropsPendingBatches(t *testing.T) {
	// Given: the first page fills no batch and the context is cancelled on the next read
	m := store.NewMemory()
	seed(m, 8, func(i int) any { return jan1 })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Hook = func(_ context.Context, op store.Op) error {
		if op == store.OpAdvance {
			cancel()
			return context.Canceled
		}
		return nil
	}
	cfg := testConfig()
	cfg.Engine.ScrollSize = 5
	e := newEngine(t, cfg, m, &fakeSleeper{})

	// When: running
	report, err := e.Run(ctx)

	// Then: aborted, nothing written, the pending documents are reported
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, async.StateAborted, report.State)
	assert.Equal(t, int64(5), report.Scanned)
	assert.Equal(t, int64(5), report.Unflushed)
	assert.True(t, report.Balanced())
	assert.Zero(t, m.Calls(store.OpBulk))
	assert.Equal(t, 0, m.OpenCursors())
}

func TestRun_WorkersKeepBucketOrderAndBalance(t *testing.T) {
	// Given: 200 documents spread over 7 days and 4 workers
	m := store.NewMemory()
	seed(m, 200, func(i int) any { return jan1 + int64(i%7)*day + int64(i) })
	cfg := testConfig()
	cfg.Engine.Workers = 4
	cfg.Engine.BatchSize = 3
	cfg.Engine.ScrollSize = 17
	e := newEngine(t, cfg, m, &fakeSleeper{})

	// When: running
	report, err := e.Run(context.Background())

	// Then: everything lands, and each index holds its documents in source order
	require.NoError(t, err)
	assert.Equal(t, int64(200), report.Written)
	assert.True(t, report.Balanced())
	assert.Len(t, report.Indices, 7)

	for _, stats := range report.Indices {
		docs := m.Docs(stats.Index)
		assert.Equal(t, stats.Written, int64(len(docs)))
		for i := 1; i < len(docs); i++ {
			assert.Less(t, docs[i-1].ID, docs[i].ID, "index %s out of order", stats.Index)
		}
	}
}

func TestRun_QueryIsSent(t *testing.T) {
	m := store.NewMemory()
	seed(m, 1, func(i int) any { return jan1 })
	cfg := testConfig()
	cfg.Query = &config.QuerySpec{GTE: "2024-01-01", LTE: "2024-01-31", ISOFormat: config.IsoEpochSecond, SortOrder: config.SortDesc}
	e := newEngine(t, cfg, m, &fakeSleeper{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	searches := m.Searches()
	require.Len(t, searches, 1)
	assert.Equal(t, "logs", searches[0].Index)
	assert.Equal(t, 100, searches[0].Size)
	assert.Contains(t, string(searches[0].Body), `"range"`)
	assert.Contains(t, string(searches[0].Body), `"desc"`)
}

func TestRun_IsSingleUse(t *testing.T) {
	m := store.NewMemory()
	seed(m, 1, func(i int) any { return jan1 })
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeInternal, serrors.GetCode(err))
}

func TestRun_EmptySource(t *testing.T) {
	m := store.NewMemory()
	m.Seed("logs")
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, async.StateDone, report.State)
	assert.Zero(t, report.Scanned)
	assert.Empty(t, report.Indices)
	assert.NotEmpty(t, report.RunID)
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	require.Error(t, err)
}

func TestRun_CancelDuringWriteAccountsEveryDocument(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{"inline", 1},
		{"pool", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: the context is cancelled by the first bulk request
			m := store.NewMemory()
			seed(m, 40, func(i int) any { return jan1 + int64(i%4)*day })
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			m.Hook = func(_ context.Context, op store.Op) error {
				if op == store.OpBulk {
					cancel()
					return context.Canceled
				}
				return nil
			}
			cfg := testConfig()
			cfg.Engine.BatchSize = 2
			cfg.Engine.Workers = tt.workers
			e := newEngine(t, cfg, m, &fakeSleeper{})

			// When: running
			report, err := e.Run(ctx)

			// Then: documents in flight, queued or pending are all unflushed
			require.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, async.StateAborted, report.State)
			assert.Zero(t, report.Written)
			assert.Positive(t, report.Unflushed)
			assert.Equal(t, report.Scanned, report.Written+report.Failed+report.Invalid+report.Unflushed)
			assert.True(t, report.Balanced())
		})
	}
}

func TestRun_StateIsFlushingWhileWriting(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{"inline", 1},
		{"pool", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: several buckets and a hook that records the state at every bulk
			m := store.NewMemory()
			seed(m, 60, func(i int) any { return jan1 + int64(i%5)*day })
			cfg := testConfig()
			cfg.Engine.BatchSize = 4
			cfg.Engine.Workers = tt.workers
			e := newEngine(t, cfg, m, &fakeSleeper{})

			var mu sync.Mutex
			var states []async.State
			m.Hook = func(_ context.Context, op store.Op) error {
				if op == store.OpBulk {
					mu.Lock()
					states = append(states, e.Progress().State())
					mu.Unlock()
				}
				return nil
			}

			// When: running
			report, err := e.Run(context.Background())

			// Then: every write happened in the Flushing state
			require.NoError(t, err)
			assert.Equal(t, async.StateDone, report.State)
			require.Len(t, states, 15)
			for _, s := range states {
				assert.Equal(t, async.StateFlushing, s)
			}
		})
	}
}

func TestRun_RejectedItemsArePartialFailures(t *testing.T) {
	// Given: 12 documents over two days, two of them rejected by the cluster
	m := store.NewMemory()
	seed(m, 12, func(i int) any { return jan1 + int64(i%2)*day })
	m.Reject("mapper_parsing_exception", "doc-002", "doc-005")
	e := newEngine(t, testConfig(), m, &fakeSleeper{})

	// When: running
	report, err := e.Run(context.Background())

	// Then: the run is Done, the rejects are failed without a retry
	require.NoError(t, err)
	assert.Equal(t, async.StateDone, report.State)
	assert.Equal(t, int64(10), report.Written)
	assert.Equal(t, int64(2), report.Failed)
	assert.Zero(t, report.BatchesFailed)
	assert.Equal(t, 2, m.Calls(store.OpBulk))
	assert.True(t, report.Balanced())

	even := report.Index("logs-20240101")
	require.NotNil(t, even)
	assert.Equal(t, int64(5), even.Written)
	assert.Equal(t, int64(1), even.Failed)
	assert.Zero(t, even.FailedBatches)

	odd := report.Index("logs-20240102")
	require.NotNil(t, odd)
	assert.Equal(t, int64(5), odd.Written)
	assert.Equal(t, int64(1), odd.Failed)

	assert.Len(t, m.Docs("logs-20240101"), 5)
	assert.Len(t, m.Docs("logs-20240102"), 5)
}
