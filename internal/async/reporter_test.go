package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshots struct {
	mu   sync.Mutex
	seen []RunProgressSnapshot
}

func (s *snapshots) record(snap RunProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, snap)
}

func (s *snapshots) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestReporter_ReportsPeriodicallyAndOnStop(t *testing.T) {
	// Given: a reporter with a short interval
	p := NewRunProgress()
	p.AddScanned(3)
	rec := &snapshots{}
	r := NewReporter(p, 5*time.Millisecond, rec.record)

	// When: running for a while then stopping
	r.Start(context.Background())
	require.Eventually(t, func() bool { return rec.count() >= 2 }, time.Second, time.Millisecond)
	r.Stop()

	// Then: the final snapshot reflects the counters
	n := rec.count()
	rec.mu.Lock()
	last := rec.seen[n-1]
	rec.mu.Unlock()
	assert.Equal(t, int64(3), last.Scanned)

	// Stop is idempotent and nothing is reported afterwards
	r.Stop()
	assert.Equal(t, n, rec.count())
}

func TestReporter_StopWithoutStart(t *testing.T) {
	rec := &snapshots{}
	r := NewReporter(NewRunProgress(), time.Hour, rec.record)
	r.Stop()
	r.Start(context.Background())
	assert.Zero(t, rec.count())
}

func TestReporter_ContextCancelEndsLoop(t *testing.T) {
	rec := &snapshots{}
	r := NewReporter(NewRunProgress(), time.Hour, rec.record)
	ctx, cancel := context.WithCancel(context.Background())

	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}
