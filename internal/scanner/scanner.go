// Package scanner reads every document of the source index through a
// server-side cursor, one page at a time.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/query"
	"github.com/Aman-CERP/splitdex/internal/store"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultPageSize  = 1000
	DefaultKeepAlive = 5 * time.Minute
)

// Cursor is the scan position threaded through Next calls.
// The zero value is Start.
type Cursor struct {
	id      string
	started bool
	done    bool
}

// Start is the cursor for the first call to Next.
var Start = Cursor{}

// Done reports whether the scan is exhausted.
func (c Cursor) Done() bool { return c.done }

// ID returns the server-side cursor id, empty before the first page.
func (c Cursor) ID() string { return c.id }

// Page is one page of documents and the cursor for the next call.
type Page struct {
	Docs   []store.Document
	Cursor Cursor
}

// Done reports whether this was the last page.
func (p Page) Done() bool { return p.Cursor.done }

// Options configures a Scanner.
type Options struct {
	// Index is the source index name.
	Index string

	// PageSize is the number of documents per page.
	PageSize int

	// KeepAlive is how long the server keeps the cursor between pages.
	KeepAlive time.Duration

	// Retry governs page reads. Exhausting it fails the scan.
	Retry serrors.RetryConfig

	Logger *slog.Logger
}

// Scanner pulls pages from a SearchEngine. It is not restartable mid-stream.
type Scanner struct {
	engine store.SearchEngine
	opts   Options
	body   []byte
	logger *slog.Logger

	mu   sync.Mutex
	open string
}

// New creates a scanner for req over opts.Index.
func New(engine store.SearchEngine, req query.SearchRequest, opts Options) (*Scanner, error) {
	body, err := req.Body()
	if err != nil {
		return nil, serrors.InternalError("cannot render search request", err)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{engine: engine, opts: opts, body: body, logger: logger}, nil
}

// Next fetches the page after cur. Each fetch is retried with the read policy;
// when the policy is exhausted Next returns a FatalScanError. A cancelled
// context is returned as is.
func (s *Scanner) Next(ctx context.Context, cur Cursor) (Page, error) {
	if cur.done {
		return Page{Cursor: cur}, nil
	}

	retry := s.opts.Retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("page read failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}

	page, err := serrors.RetryWithResult(ctx, retry, func(ctx context.Context) (store.Page, error) {
		if !cur.started {
			return s.engine.Search(ctx, store.SearchParams{
				Index:     s.opts.Index,
				Body:      s.body,
				Size:      s.opts.PageSize,
				KeepAlive: s.opts.KeepAlive,
			})
		}
		return s.engine.Advance(ctx, cur.id, s.opts.KeepAlive)
	})
	if err != nil {
		if ctx.Err() != nil {
			return Page{Cursor: cur}, ctx.Err()
		}
		return Page{Cursor: cur}, serrors.FatalScanError("cannot read source index", err).
			WithDetail("index", s.opts.Index)
	}

	id := page.Cursor
	if id == "" {
		id = cur.id
	}
	s.mu.Lock()
	s.open = id
	s.mu.Unlock()

	next := Cursor{id: id, started: true, done: page.Done || len(page.Docs) == 0}
	return Page{Docs: page.Docs, Cursor: next}, nil
}

// Scan drives Next to exhaustion, calling fn for each document in engine
// order. It stops at the first error from the engine or fn.
func (s *Scanner) Scan(ctx context.Context, fn func(store.Document) error) error {
	cur := Start
	for !cur.Done() {
		page, err := s.Next(ctx, cur)
		if err != nil {
			return err
		}
		for _, doc := range page.Docs {
			if err := fn(doc); err != nil {
				return err
			}
		}
		cur = page.Cursor
	}
	return nil
}

// Close releases the server-side cursor. Failures are logged and returned
// but leave nothing to clean up: the cursor expires after KeepAlive.
func (s *Scanner) Close(ctx context.Context) error {
	s.mu.Lock()
	id := s.open
	s.open = ""
	s.mu.Unlock()

	if id == "" {
		return nil
	}
	if err := s.engine.ClearCursor(ctx, id); err != nil {
		s.logger.Debug("cannot clear cursor", slog.String("cursor", id), slog.String("error", err.Error()))
		return fmt.Errorf("clear cursor: %w", err)
	}
	return nil
}
