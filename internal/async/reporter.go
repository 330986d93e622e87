package async

import (
	"context"
	"sync"
	"time"
)

// ReportFunc receives periodic progress snapshots.
type ReportFunc func(RunProgressSnapshot)

// Reporter calls a ReportFunc with snapshots of a RunProgress on a fixed
// interval in a background goroutine, and once more when stopped.
type Reporter struct {
	progress *RunProgress
	interval time.Duration
	report   ReportFunc

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewReporter creates a reporter. A non-positive interval defaults to 10s.
func NewReporter(progress *RunProgress, interval time.Duration, report ReportFunc) *Reporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reporter{
		progress: progress,
		interval: interval,
		report:   report,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins reporting in a background goroutine.
// This is non-blocking and returns immediately.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running || r.stopped {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.run(ctx)
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report(r.progress.Snapshot())
		case <-r.stopCh:
			r.report(r.progress.Snapshot())
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the reporter to emit a final snapshot and waits for it to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running || r.stopped {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}
