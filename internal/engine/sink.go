package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/splitdex/internal/batch"
)

var errSinkClosed = errors.New("batch sink closed")

// sink receives full batches from the scan loop.
type sink interface {
	submit(b *batch.Batch) error
	close() error
}

func (e *Engine) newSink(ctx context.Context) sink {
	if e.cfg.Engine.Workers <= 1 {
		return &inlineSink{e: e, ctx: ctx}
	}
	return newPoolSink(ctx, e, e.cfg.Engine.Workers)
}

// inlineSink writes each batch before the scan continues.
type inlineSink struct {
	e   *Engine
	ctx context.Context
}

func (s *inlineSink) submit(b *batch.Batch) error {
	return s.e.flush(s.ctx, b)
}

func (s *inlineSink) close() error { return nil }

// poolSink writes batches on a fixed set of workers. A bucket always hashes
// to the same worker and each worker writes in arrival order, so the
// batches of one bucket keep their order.
type poolSink struct {
	queues []chan *batch.Batch
	group  *errgroup.Group
	ctx    context.Context

	once sync.Once
	err  error
}

func newPoolSink(ctx context.Context, e *Engine, workers int) *poolSink {
	g, gctx := errgroup.WithContext(ctx)
	p := &poolSink{
		queues: make([]chan *batch.Batch, workers),
		group:  g,
		ctx:    gctx,
	}
	for i := range p.queues {
		q := make(chan *batch.Batch, 1)
		p.queues[i] = q
		g.Go(func() error {
			for b := range q {
				if err := e.flush(gctx, b); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return p
}

func (p *poolSink) shard(b *batch.Batch) int {
	return int(xxhash.Sum64String(string(b.Key)) % uint64(len(p.queues)))
}

func (p *poolSink) submit(b *batch.Batch) error {
	select {
	case p.queues[p.shard(b)] <- b:
		return nil
	case <-p.ctx.Done():
		return errSinkClosed
	}
}

// close stops intake and waits for the workers to finish their queues.
func (p *poolSink) close() error {
	p.once.Do(func() {
		for _, q := range p.queues {
			close(q)
		}
		p.err = p.group.Wait()
	})
	return p.err
}
