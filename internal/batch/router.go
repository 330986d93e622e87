// Package batch groups documents into per-bucket batches of a fixed size.
package batch

import (
	"github.com/Aman-CERP/splitdex/internal/bucket"
	"github.com/Aman-CERP/splitdex/internal/store"
)

// Batch is a group of documents for one bucket. The router owns it until it
// is returned from Route or Drain; after that it belongs to the caller.
type Batch struct {
	Key  bucket.Key
	Docs []store.Document

	// Seq numbers the batches of one bucket from 1 in emission order.
	Seq int
}

// Len returns the number of documents in the batch.
func (b *Batch) Len() int { return len(b.Docs) }

// KeyFunc maps a document to its bucket.
type KeyFunc func(store.Document) bucket.Key

type pending struct {
	docs []store.Document
	seq  int
}

// Router accumulates documents per bucket. It is not safe for concurrent use.
type Router struct {
	size   int
	keyFn  KeyFunc
	order  []bucket.Key
	groups map[bucket.Key]*pending
	count  int
}

// NewRouter creates a router that emits batches of exactly size documents.
// A size below 1 is treated as 1.
func NewRouter(size int, keyFn KeyFunc) *Router {
	if size < 1 {
		size = 1
	}
	return &Router{
		size:   size,
		keyFn:  keyFn,
		groups: make(map[bucket.Key]*pending),
	}
}

// Route adds doc to its bucket. When the bucket reaches the batch size the
// full batch is returned with true and the bucket starts over empty.
func (r *Router) Route(doc store.Document) (*Batch, bool) {
	key := r.keyFn(doc)
	g, ok := r.groups[key]
	if !ok {
		g = &pending{docs: make([]store.Document, 0, r.size)}
		r.groups[key] = g
		r.order = append(r.order, key)
	}
	g.docs = append(g.docs, doc)
	r.count++

	if len(g.docs) < r.size {
		return nil, false
	}
	return r.take(key, g), true
}

// Drain returns every non-empty bucket as a final batch, in the order the
// buckets were first seen, and leaves the router empty.
func (r *Router) Drain() []*Batch {
	var out []*Batch
	for _, key := range r.order {
		if g := r.groups[key]; len(g.docs) > 0 {
			out = append(out, r.take(key, g))
		}
	}
	return out
}

// Pending returns the number of routed documents not yet emitted.
func (r *Router) Pending() int { return r.count }

// Buckets returns the number of distinct buckets seen so far.
func (r *Router) Buckets() int { return len(r.order) }

func (r *Router) take(key bucket.Key, g *pending) *Batch {
	g.seq++
	b := &Batch{Key: key, Docs: g.docs, Seq: g.seq}
	r.count -= len(g.docs)
	g.docs = make([]store.Document, 0, r.size)
	return b
}
