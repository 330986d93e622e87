// Package writer writes batches to destination indices with bounded retries.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/store"
)

// DefaultKnownIndices bounds the per-run cache of indices known to exist.
const DefaultKnownIndices = 4096

// Options configures a Writer.
type Options struct {
	// Retry governs both index creation and bulk writes.
	Retry serrors.RetryConfig

	// MaxBulkPerSecond throttles bulk requests across all callers. Zero disables it.
	MaxBulkPerSecond float64

	// KnownIndices sizes the existence cache. Zero uses DefaultKnownIndices.
	KnownIndices int

	Logger *slog.Logger
}

// Result is the outcome of one WriteBatch call.
type Result struct {
	Index      string
	Attempts   int
	Written    int
	Failed     int
	ItemErrors []store.BulkItemResult

	// Err is set when the whole batch failed: a BatchFailure after the retry
	// policy was exhausted, or the context error on cancellation.
	Err error
}

// Writer ensures destination indices exist and bulk-writes batches to them.
// It is safe for concurrent use.
type Writer struct {
	engine  store.SearchEngine
	retry   serrors.RetryConfig
	known   *lru.Cache[string, struct{}]
	creates singleflight.Group
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Writer.
func New(engine store.SearchEngine, opts Options) (*Writer, error) {
	size := opts.KnownIndices
	if size <= 0 {
		size = DefaultKnownIndices
	}
	known, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{engine: engine, retry: opts.Retry, known: known, logger: logger}
	if opts.MaxBulkPerSecond > 0 {
		burst := int(opts.MaxBulkPerSecond)
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.MaxBulkPerSecond), burst)
	}
	return w, nil
}

// EnsureIndex makes sure name exists, creating it when missing. Success is
// remembered for the rest of the run; concurrent calls for the same name
// share one check. An index that already exists counts as success.
func (w *Writer) EnsureIndex(ctx context.Context, name string) error {
	if w.known.Contains(name) {
		return nil
	}

	_, err, _ := w.creates.Do(name, func() (any, error) {
		if w.known.Contains(name) {
			return nil, nil
		}

		retry := w.retry
		retry.OnRetry = w.onRetry("ensure index", name)
		err := serrors.Retry(ctx, retry, func(ctx context.Context) error {
			exists, err := w.engine.IndexExists(ctx, name)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			return w.engine.CreateIndex(ctx, name)
		})
		if err != nil {
			return nil, err
		}

		w.known.Add(name, struct{}{})
		w.logger.Debug("destination index ready", slog.String("index", name))
		return nil, nil
	})
	return err
}

// WriteBatch bulk-writes docs to name with their source IDs. Transport and
// whole-request failures retry the full batch; per-item rejections are
// counted without a retry.
func (w *Writer) WriteBatch(ctx context.Context, name string, docs []store.Document) Result {
	result := Result{Index: name}
	if len(docs) == 0 {
		return result
	}

	items := make([]store.BulkItem, len(docs))
	for i, d := range docs {
		items[i] = store.BulkItem{Index: name, ID: d.ID, Source: d.Source}
	}

	retry := w.retry
	retry.OnRetry = w.onRetry("bulk", name)

	start := time.Now()
	res, err := serrors.RetryWithResult(ctx, retry, func(ctx context.Context) (store.BulkResult, error) {
		result.Attempts++
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return store.BulkResult{}, serrors.TimeoutError("bulk throttled past deadline", err)
			}
		}
		return w.engine.Bulk(ctx, items)
	})
	if err != nil {
		result.Failed = len(docs)
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Err = ctxErr
			return result
		}
		result.Err = serrors.BatchFailure(fmt.Sprintf("batch of %d documents not written", len(docs)), err).
			WithDetail("index", name).
			WithDetail("attempts", fmt.Sprint(result.Attempts))
		w.logger.Error("batch failed",
			slog.String("index", name),
			slog.Int("docs", len(docs)),
			slog.Int("attempts", result.Attempts),
			slog.String("error", err.Error()))
		return result
	}

	result.ItemErrors = res.Failures()
	result.Failed = len(result.ItemErrors)
	result.Written = len(docs) - result.Failed
	if result.Failed > 0 {
		w.logger.Warn("bulk items rejected",
			slog.String("index", name),
			slog.Int("rejected", result.Failed),
			slog.String("first_error", result.ItemErrors[0].Error))
	}
	w.logger.Debug("batch written",
		slog.String("index", name),
		slog.Int("written", result.Written),
		slog.Int("attempts", result.Attempts),
		slog.Duration("took", time.Since(start)))
	return result
}

// Known reports whether name is cached as existing.
func (w *Writer) Known(name string) bool {
	return w.known.Contains(name)
}

func (w *Writer) onRetry(op, index string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		w.logger.Warn(op+" failed, retrying",
			slog.String("index", index),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}
}
