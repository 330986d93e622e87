// Package engine orchestrates a split run: scan the source, bucket each
// document by date, batch per bucket and write every batch to its
// destination index.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/splitdex/internal/async"
	"github.com/Aman-CERP/splitdex/internal/batch"
	"github.com/Aman-CERP/splitdex/internal/bucket"
	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/query"
	"github.com/Aman-CERP/splitdex/internal/scanner"
	"github.com/Aman-CERP/splitdex/internal/store"
	"github.com/Aman-CERP/splitdex/internal/writer"
)

// DefaultProgressInterval is how often progress is logged during a run.
const DefaultProgressInterval = 10 * time.Second

// Deps are the collaborators of an Engine. Only Engine is required.
type Deps struct {
	Engine store.SearchEngine
	Logger *slog.Logger

	// Sleep and Backoff override the real-time retry waits.
	Sleep   serrors.Sleeper
	Backoff serrors.BackoffPolicy

	// Progress receives live counters. A fresh tracker is used when nil.
	Progress *async.RunProgress

	// ProgressInterval sets the progress log period. Negative disables it.
	ProgressInterval time.Duration

	// Now overrides the clock used for report timestamps.
	Now func() time.Time
}

// Engine runs one split. It is single-use.
type Engine struct {
	cfg      *config.Config
	deps     Deps
	logger   *slog.Logger
	retry    serrors.RetryConfig
	request  query.SearchRequest
	scanner  *scanner.Scanner
	writer   *writer.Writer
	progress *async.RunProgress
	loc      *time.Location

	mu     sync.Mutex
	report *Report
	ran    bool

	// outstanding counts dated documents routed but not yet recorded.
	outstanding atomic.Int64

	flushMu  sync.Mutex
	active   int
	draining bool
}

// New builds an engine for cfg.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, serrors.InternalError("engine requires a configuration", nil)
	}
	if deps.Engine == nil {
		return nil, serrors.InternalError("engine requires a search engine", nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Progress == nil {
		deps.Progress = async.NewRunProgress()
	}
	if deps.ProgressInterval == 0 {
		deps.ProgressInterval = DefaultProgressInterval
	}

	req, err := query.Build(cfg.Query, cfg.Elastic.Field)
	if err != nil {
		return nil, err
	}

	retry := cfg.Retry()
	retry.Sleep = deps.Sleep
	retry.Backoff = deps.Backoff

	sc, err := scanner.New(deps.Engine, req, scanner.Options{
		Index:     cfg.Elastic.IndexName,
		PageSize:  cfg.Engine.ScrollSize,
		KeepAlive: cfg.Engine.ScrollKeepAlive,
		Retry:     retry,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	w, err := writer.New(deps.Engine, writer.Options{
		Retry:            retry,
		MaxBulkPerSecond: cfg.Engine.MaxBulkPerSecond,
		Logger:           deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With(slog.String("run_id", runID)),
		retry:    retry,
		request:  req,
		scanner:  sc,
		writer:   w,
		progress: deps.Progress,
		loc:      cfg.Location(),
		report:   newReport(runID, cfg.Elastic.IndexName),
	}, nil
}

// Request returns the search request the run issues.
func (e *Engine) Request() query.SearchRequest { return e.request }

// Progress returns the live progress tracker.
func (e *Engine) Progress() *async.RunProgress { return e.progress }

// Run executes the split. On Done it returns the report and a nil error, even
// when some batches failed. On a fatal read error or cancellation it returns
// the partial report in the Aborted state together with the cause; batches
// not yet flushed are dropped and already written indices are kept.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return nil, serrors.InternalError("engine has already run", nil)
	}
	e.ran = true
	e.report.StartedAt = e.deps.Now()
	e.mu.Unlock()

	e.setState(async.StateScanning)
	e.logger.Info("split started",
		slog.String("source", e.cfg.Elastic.IndexName),
		slog.String("field", e.cfg.Elastic.Field),
		slog.String("format", string(e.cfg.Engine.FormatDate)),
		slog.Int("batch_size", e.cfg.Engine.BatchSize),
		slog.Int("workers", e.cfg.Engine.Workers))

	if e.deps.ProgressInterval > 0 {
		reporter := async.NewReporter(e.progress, e.deps.ProgressInterval, e.logProgress)
		reporter.Start(ctx)
		defer reporter.Stop()
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.Elastic.Timeout)
		defer cancel()
		_ = e.scanner.Close(closeCtx)
	}()

	if err := e.ping(ctx); err != nil {
		return e.abort(err)
	}

	router := batch.NewRouter(e.cfg.Engine.BatchSize, e.keyOf)
	sink := e.newSink(ctx)

	scanErr := e.scanner.Scan(ctx, func(doc store.Document) error {
		e.progress.AddScanned(1)
		e.mu.Lock()
		e.report.Scanned++
		e.mu.Unlock()

		invalid, drop := e.checkDate(doc)
		if drop {
			return nil
		}
		if !invalid {
			e.outstanding.Add(1)
		}
		b, full := router.Route(doc)
		e.progress.SetBuckets(router.Buckets())
		if !full {
			return nil
		}
		return sink.submit(b)
	})
	if scanErr != nil {
		sinkErr := sink.close()
		return e.abort(firstCause(ctx, scanErr, sinkErr))
	}

	e.flushMu.Lock()
	e.draining = true
	e.flushMu.Unlock()
	e.setState(async.StateFlushing)
	for _, b := range router.Drain() {
		if err := sink.submit(b); err != nil {
			return e.abort(firstCause(ctx, err, sink.close()))
		}
	}
	if err := sink.close(); err != nil {
		return e.abort(firstCause(ctx, err))
	}

	e.setState(async.StateDone)
	report := e.finish()
	e.logger.Info("split finished",
		slog.Int64("scanned", report.Scanned),
		slog.Int64("written", report.Written),
		slog.Int64("failed", report.Failed),
		slog.Int64("invalid", report.Invalid),
		slog.Int("batches", report.BatchesFlushed),
		slog.Int("failed_batches", report.BatchesFailed),
		slog.Duration("took", report.Duration()))
	return report, nil
}

// keyOf buckets a document. Unusable dates map to bucket.Invalid.
func (e *Engine) keyOf(doc store.Document) bucket.Key {
	key, err := bucket.Bucket(bucket.Lookup(doc.Source, e.cfg.Elastic.Field), e.cfg.Engine.FormatDate, e.loc)
	if err != nil {
		return bucket.Invalid
	}
	return key
}

// checkDate reports whether doc lacks a usable date and whether the invalid
// policy discards it. Invalid documents are counted here.
func (e *Engine) checkDate(doc store.Document) (invalid, drop bool) {
	value := bucket.Lookup(doc.Source, e.cfg.Elastic.Field)
	if _, err := bucket.Bucket(value, e.cfg.Engine.FormatDate, e.loc); err == nil {
		return false, false
	}

	e.progress.AddInvalid(1)
	drop = e.cfg.Engine.InvalidPolicy == config.InvalidFail

	e.mu.Lock()
	e.report.Invalid++
	if drop {
		e.report.InvalidFailed++
	}
	e.mu.Unlock()

	e.logger.Debug("document has no usable date",
		slog.String("id", doc.ID),
		slog.String("field", e.cfg.Elastic.Field),
		slog.Any("value", value),
		slog.Bool("dropped", drop))
	return true, drop
}

// flush ensures the destination index and writes one batch. Write failures
// are recorded and swallowed; only cancellation is returned.
func (e *Engine) flush(ctx context.Context, b *batch.Batch) error {
	e.beginFlush()
	defer e.endFlush()

	name := e.cfg.DestinationIndex(b.Key)
	invalid := !b.Key.IsValid()

	if err := e.writer.EnsureIndex(ctx, name); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Error("destination index unavailable, batch failed",
			slog.String("index", name),
			slog.Int("docs", b.Len()),
			slog.String("error", err.Error()))
		e.record(name, invalid, 0, b.Len(), true)
		return nil
	}

	res := e.writer.WriteBatch(ctx, name, b.Docs)
	if res.Err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	e.record(name, invalid, res.Written, res.Failed, res.Err != nil)
	return nil
}

func (e *Engine) record(index string, invalid bool, written, failed int, batchFailed bool) {
	if !invalid {
		e.outstanding.Add(-int64(written + failed))
	}
	e.progress.AddBatch(written, failed)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.record(index, invalid, written, failed, batchFailed)
}

// ping checks the cluster with the read retry policy before scanning.
func (e *Engine) ping(ctx context.Context) error {
	err := serrors.Retry(ctx, e.retry, e.deps.Engine.Ping)
	if err == nil || ctx.Err() != nil {
		return err
	}
	return serrors.FatalScanError("search engine unreachable", err).
		WithDetail("url", e.cfg.Elastic.URL).
		WithSuggestion("Check es_url, credentials and network access to the cluster")
}

// abort must run after the sink is closed so no flush is still recording.
func (e *Engine) abort(cause error) (*Report, error) {
	e.progress.SetError(cause.Error())
	e.mu.Lock()
	e.report.AbortCause = cause.Error()
	e.report.Unflushed = e.outstanding.Load()
	e.mu.Unlock()

	report := e.finish()
	e.logger.Error("split aborted",
		slog.String("cause", report.AbortCause),
		slog.Int64("scanned", report.Scanned),
		slog.Int64("written", report.Written),
		slog.Int64("unflushed", report.Unflushed))
	return report, cause
}

func (e *Engine) finish() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.State = e.progress.State()
	e.report.FinishedAt = e.deps.Now()
	e.report.finalize()
	return e.report
}

// beginFlush and endFlush keep the state at Flushing while any batch is
// being written, then return it to Scanning unless the final drain started.
func (e *Engine) beginFlush() {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.active++
	if e.active == 1 {
		e.setState(async.StateFlushing)
	}
}

func (e *Engine) endFlush() {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.active--
	if e.active == 0 && !e.draining {
		e.setState(async.StateScanning)
	}
}

func (e *Engine) setState(s async.State) {
	e.progress.SetState(s)
	e.mu.Lock()
	e.report.State = e.progress.State()
	e.mu.Unlock()
}

func (e *Engine) logProgress(s async.RunProgressSnapshot) {
	e.logger.Info("progress",
		slog.String("state", s.State),
		slog.Int64("scanned", s.Scanned),
		slog.Int64("written", s.Written),
		slog.Int64("failed", s.Failed),
		slog.Int64("invalid", s.Invalid),
		slog.Int("buckets", s.Buckets),
		slog.String("rate", fmt.Sprintf("%.0f docs/s", s.DocsPerSecond)))
}

// firstCause prefers cancellation, then a scan failure, then a sink failure.
func firstCause(ctx context.Context, errs ...error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, errSinkClosed) {
			return err
		}
	}
	return errSinkClosed
}
