package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/splitdex/internal/errors"
)

func seedDocs(n int) []Document {
	docs := make([]Document, n)
	for i := range docs {
		docs[i] = Document{ID: string(rune('a' + i)), Source: map[string]any{"n": i}}
	}
	return docs
}

func TestMemory_PagesInInsertionOrder(t *testing.T) {
	// Given: five seeded documents
	m := NewMemory()
	m.Seed("src", seedDocs(5)...)
	ctx := context.Background()

	// When: scanning with page size 2
	var ids []string
	page, err := m.Search(ctx, SearchParams{Index: "src", Size: 2})
	require.NoError(t, err)
	for {
		for _, d := range page.Docs {
			ids = append(ids, d.ID)
		}
		if page.Done {
			break
		}
		page, err = m.Advance(ctx, page.Cursor, 0)
		require.NoError(t, err)
	}

	// Then: every document appears once, in order
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
	assert.Equal(t, 1, m.OpenCursors())
	require.NoError(t, m.ClearCursor(ctx, page.Cursor))
	assert.Equal(t, 0, m.OpenCursors())
}

func TestMemory_SearchMissingIndex(t *testing.T) {
	_, err := NewMemory().Search(context.Background(), SearchParams{Index: "nope"})
	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeServiceError, serrors.GetCode(err))
}

func TestMemory_FailNextConsumesFaults(t *testing.T) {
	m := NewMemory()
	boom := errors.New("boom")
	m.FailNext(OpPing, 2, boom)
	ctx := context.Background()

	assert.ErrorIs(t, m.Ping(ctx), boom)
	assert.ErrorIs(t, m.Ping(ctx), boom)
	assert.NoError(t, m.Ping(ctx))
	assert.Equal(t, 3, m.Calls(OpPing))
}

func TestMemory_DefaultFaultIsTransient(t *testing.T) {
	m := NewMemory()
	m.FailNext(OpBulk, 1, nil)

	_, err := m.Bulk(context.Background(), nil)
	assert.True(t, serrors.IsRetryable(err))
}

func TestMemory_BulkOverwritesByIDAndRejects(t *testing.T) {
	// Given: an engine rejecting document "b"
	m := NewMemory()
	m.Reject("mapper_parsing_exception", "b")
	ctx := context.Background()
	items := []BulkItem{
		{Index: "dst", ID: "a", Source: map[string]any{"v": 1}},
		{Index: "dst", ID: "b", Source: map[string]any{"v": 2}},
	}

	// When: writing the same batch twice
	_, err := m.Bulk(ctx, items)
	require.NoError(t, err)
	res, err := m.Bulk(ctx, items)
	require.NoError(t, err)

	// Then: the index holds one copy of "a" and the rejection is reported
	docs := m.Docs("dst")
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
	require.Len(t, res.Failures(), 1)
	assert.Equal(t, "b", res.Failures()[0].ID)
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().IndexExists(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemory_CreateIndexIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateIndex(ctx, "dst"))
	require.NoError(t, m.CreateIndex(ctx, "dst"))

	ok, err := m.IndexExists(ctx, "dst")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"dst"}, m.Indices())
}
