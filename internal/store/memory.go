package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

// Op names a SearchEngine operation for fault injection and call counting.
type Op string

const (
	OpSearch      Op = "search"
	OpAdvance     Op = "advance"
	OpClearCursor Op = "clear_cursor"
	OpIndexExists Op = "index_exists"
	OpCreateIndex Op = "create_index"
	OpBulk        Op = "bulk"
	OpPing        Op = "ping"
)

// Memory is an in-memory SearchEngine. Documents are returned in insertion
// order; queries are not evaluated. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	indices map[string]*memIndex
	cursors map[string]*memCursor
	seq     int
	faults  map[Op][]error
	rejects map[string]string
	calls   map[Op]int
	params  []SearchParams

	// Hook runs before every operation with the lock released. A non-nil
	// error fails the operation.
	Hook func(ctx context.Context, op Op) error
}

type memIndex struct {
	order []string
	docs  map[string]Document
}

type memCursor struct {
	docs []Document
	pos  int
	size int
}

var _ SearchEngine = (*Memory)(nil)

// NewMemory creates an empty engine.
func NewMemory() *Memory {
	return &Memory{
		indices: make(map[string]*memIndex),
		cursors: make(map[string]*memCursor),
		faults:  make(map[Op][]error),
		rejects: make(map[string]string),
		calls:   make(map[Op]int),
	}
}

// Seed adds documents to index, creating it if needed.
func (m *Memory) Seed(index string, docs ...Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.index(index)
	for _, d := range docs {
		d.Index = index
		idx.put(d)
	}
}

// FailNext makes the next n calls of op fail with err. A nil err fails with
// a retryable transient error.
func (m *Memory) FailNext(op Op, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		e := err
		if e == nil {
			e = serrors.TransientError(fmt.Sprintf("injected %s failure", op), nil)
		}
		m.faults[op] = append(m.faults[op], e)
	}
}

// Reject makes bulk items with the given document IDs fail with reason.
func (m *Memory) Reject(reason string, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.rejects[id] = reason
	}
}

// Calls returns how many times op was invoked, including failed calls.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Searches returns the parameters of every Search call.
func (m *Memory) Searches() []SearchParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SearchParams(nil), m.params...)
}

// Docs returns the documents stored in index in first-write order.
func (m *Memory) Docs(index string) []Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[index]
	if !ok {
		return nil
	}
	out := make([]Document, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.docs[id])
	}
	return out
}

// Indices returns the sorted names of all existing indices.
func (m *Memory) Indices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.indices))
	for name := range m.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenCursors returns the number of cursors not yet cleared.
func (m *Memory) OpenCursors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cursors)
}

// Search opens a cursor over the index's documents.
func (m *Memory) Search(ctx context.Context, p SearchParams) (Page, error) {
	if err := m.enter(ctx, OpSearch); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.params = append(m.params, p)
	idx, ok := m.indices[p.Index]
	if !ok {
		return Page{}, statusError("search", 404, "index_not_found_exception: "+p.Index)
	}
	size := p.Size
	if size <= 0 {
		size = 1000
	}
	docs := make([]Document, 0, len(idx.order))
	for _, id := range idx.order {
		docs = append(docs, idx.docs[id])
	}

	m.seq++
	id := "cursor-" + strconv.Itoa(m.seq)
	c := &memCursor{docs: docs, size: size}
	m.cursors[id] = c
	return c.next(id), nil
}

// Advance returns the next page of cursor.
func (m *Memory) Advance(ctx context.Context, cursor string, _ time.Duration) (Page, error) {
	if err := m.enter(ctx, OpAdvance); err != nil {
		return Page{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cursors[cursor]
	if !ok {
		return Page{}, statusError("scroll", 404, "search_context_missing_exception: "+cursor)
	}
	return c.next(cursor), nil
}

// ClearCursor forgets cursor.
func (m *Memory) ClearCursor(ctx context.Context, cursor string) error {
	if err := m.enter(ctx, OpClearCursor); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, cursor)
	return nil
}

// IndexExists reports whether name exists.
func (m *Memory) IndexExists(ctx context.Context, name string) (bool, error) {
	if err := m.enter(ctx, OpIndexExists); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indices[name]
	return ok, nil
}

// CreateIndex creates name; existing indices are left as they are.
func (m *Memory) CreateIndex(ctx context.Context, name string) error {
	if err := m.enter(ctx, OpCreateIndex); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index(name)
	return nil
}

// Bulk stores items keyed by ID, so repeated writes overwrite.
// Items whose index does not exist are auto-created, as Elasticsearch does.
func (m *Memory) Bulk(ctx context.Context, items []BulkItem) (BulkResult, error) {
	if err := m.enter(ctx, OpBulk); err != nil {
		return BulkResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result := BulkResult{Items: make([]BulkItemResult, 0, len(items))}
	for _, item := range items {
		r := BulkItemResult{Index: item.Index, ID: item.ID, Status: 201}
		if reason, ok := m.rejects[item.ID]; ok {
			r.Status = 400
			r.Error = reason
		} else {
			m.index(item.Index).put(Document{ID: item.ID, Index: item.Index, Source: item.Source})
		}
		result.Items = append(result.Items, r)
	}
	return result, nil
}

// Ping succeeds unless a fault is injected.
func (m *Memory) Ping(ctx context.Context) error {
	return m.enter(ctx, OpPing)
}

// enter counts the call, then applies context, injected faults and the hook.
func (m *Memory) enter(ctx context.Context, op Op) error {
	m.mu.Lock()
	m.calls[op]++
	var fault error
	if q := m.faults[op]; len(q) > 0 {
		fault, m.faults[op] = q[0], q[1:]
	}
	hook := m.Hook
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return transportError(ctx, string(op), err)
	}
	if fault != nil {
		return fault
	}
	if hook != nil {
		return hook(ctx, op)
	}
	return nil
}

// index returns the named index, creating it. Callers hold m.mu.
func (m *Memory) index(name string) *memIndex {
	idx, ok := m.indices[name]
	if !ok {
		idx = &memIndex{docs: make(map[string]Document)}
		m.indices[name] = idx
	}
	return idx
}

func (i *memIndex) put(d Document) {
	if _, ok := i.docs[d.ID]; !ok {
		i.order = append(i.order, d.ID)
	}
	i.docs[d.ID] = d
}

func (c *memCursor) next(id string) Page {
	end := c.pos + c.size
	if end > len(c.docs) {
		end = len(c.docs)
	}
	page := Page{Cursor: id, Docs: append([]Document(nil), c.docs[c.pos:end]...)}
	c.pos = end
	page.Done = c.pos >= len(c.docs)
	return page
}
