// Package async provides run progress tracking and periodic reporting for splitdex.
package async

import (
	"sync"
	"time"
)

// State is the lifecycle state of a split run.
type State string

const (
	// StateIdle is the state before Run starts.
	StateIdle State = "idle"
	// StateScanning indicates documents are being read and routed.
	StateScanning State = "scanning"
	// StateFlushing indicates a full batch or the final drain is being written.
	StateFlushing State = "flushing"
	// StateDone indicates the source was exhausted and every batch was attempted.
	StateDone State = "done"
	// StateAborted indicates a fatal read error or cancellation stopped the run.
	StateAborted State = "aborted"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// RunProgressSnapshot is an immutable snapshot of run progress.
type RunProgressSnapshot struct {
	State          string  `json:"state"`
	Scanned        int64   `json:"scanned"`
	Written        int64   `json:"written"`
	Failed         int64   `json:"failed"`
	Invalid        int64   `json:"invalid"`
	Batches        int64   `json:"batches"`
	Buckets        int     `json:"buckets"`
	DocsPerSecond  float64 `json:"docs_per_second"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// RunProgress provides thread-safe tracking of run progress.
type RunProgress struct {
	mu sync.RWMutex

	state     State
	scanned   int64
	written   int64
	failed    int64
	invalid   int64
	batches   int64
	buckets   int
	startTime time.Time
	errorMsg  string
}

// NewRunProgress creates a tracker in the idle state.
func NewRunProgress() *RunProgress {
	return &RunProgress{state: StateIdle, startTime: time.Now()}
}

// SetState moves the run to state. Terminal states are final.
func (p *RunProgress) SetState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Terminal() {
		return
	}
	if p.state == StateIdle && state == StateScanning {
		p.startTime = time.Now()
	}
	p.state = state
}

// State returns the current state.
func (p *RunProgress) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// AddScanned records documents read from the source.
func (p *RunProgress) AddScanned(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanned += int64(n)
}

// AddInvalid records documents without a usable date.
func (p *RunProgress) AddInvalid(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalid += int64(n)
}

// AddBatch records one attempted batch and its outcome.
func (p *RunProgress) AddBatch(written, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
	p.written += int64(written)
	p.failed += int64(failed)
}

// AddFailed records documents failed outside a batch write.
func (p *RunProgress) AddFailed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed += int64(n)
}

// SetBuckets records the number of distinct buckets seen.
func (p *RunProgress) SetBuckets(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buckets = n
}

// SetError marks the run aborted with an error message.
func (p *RunProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = StateAborted
	p.errorMsg = message
}

// Snapshot returns an immutable copy of the current progress state.
func (p *RunProgress) Snapshot() RunProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	elapsed := time.Since(p.startTime)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(p.scanned) / secs
	}

	return RunProgressSnapshot{
		State:          string(p.state),
		Scanned:        p.scanned,
		Written:        p.written,
		Failed:         p.failed,
		Invalid:        p.invalid,
		Batches:        p.batches,
		Buckets:        p.buckets,
		DocsPerSecond:  rate,
		ElapsedSeconds: int(elapsed.Seconds()),
		ErrorMessage:   p.errorMsg,
	}
}
