// Package store defines the search-engine capability splitdex reads from and
// writes to, with an Elasticsearch adapter and an in-memory engine.
package store

import (
	"context"
	"time"
)

// Document is a raw document read from the source index.
type Document struct {
	ID     string         // source _id, preserved on write
	Index  string         // index the document was read from
	Source map[string]any // decoded _source
}

// Page is one page of a cursor scan.
type Page struct {
	Docs   []Document
	Cursor string // opaque server-side cursor; empty when none was opened
	Done   bool   // no further pages remain
}

// SearchParams describes the initial cursor search.
type SearchParams struct {
	Index     string
	Body      []byte
	Size      int
	KeepAlive time.Duration
}

// BulkItem is one index operation of a bulk request.
type BulkItem struct {
	Index  string
	ID     string
	Source map[string]any
}

// BulkItemResult is the outcome of one bulk item.
type BulkItemResult struct {
	Index  string
	ID     string
	Status int
	Error  string // empty on success
}

// Failed reports whether the item was rejected.
func (r BulkItemResult) Failed() bool {
	return r.Error != "" || r.Status >= 300
}

// BulkResult holds per-item outcomes in request order.
type BulkResult struct {
	Items []BulkItemResult
}

// Failures returns the rejected items.
func (r BulkResult) Failures() []BulkItemResult {
	var out []BulkItemResult
	for _, item := range r.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}

// SearchEngine is the capability required from the search backend.
//
// Errors returned for transport problems and whole-request error statuses
// are retryable SplitErrors; per-item bulk rejections are reported in the
// BulkResult instead.
type SearchEngine interface {
	// Search opens a cursor and returns its first page.
	Search(ctx context.Context, p SearchParams) (Page, error)

	// Advance returns the page after cursor.
	Advance(ctx context.Context, cursor string, keepAlive time.Duration) (Page, error)

	// ClearCursor releases a server-side cursor.
	ClearCursor(ctx context.Context, cursor string) error

	// IndexExists reports whether the index exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// CreateIndex creates the index. An index that already exists is not an error.
	CreateIndex(ctx context.Context, name string) error

	// Bulk indexes the items with their explicit IDs.
	Bulk(ctx context.Context, items []BulkItem) (BulkResult, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
