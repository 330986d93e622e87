package engine

import (
	"sort"
	"time"

	"github.com/Aman-CERP/splitdex/internal/async"
)

// IndexStats counts writes to one destination index.
type IndexStats struct {
	Index         string `json:"index" yaml:"index"`
	Written       int64  `json:"written" yaml:"written"`
	Failed        int64  `json:"failed" yaml:"failed"`
	Batches       int    `json:"batches" yaml:"batches"`
	FailedBatches int    `json:"failed_batches" yaml:"failed_batches"`
}

// Report is the outcome of a run. Written and Failed count documents with a
// valid date; documents without one are counted in Invalid, and their own
// write outcome is in InvalidWritten and InvalidFailed.
type Report struct {
	RunID       string      `json:"run_id" yaml:"run_id"`
	State       async.State `json:"state" yaml:"state"`
	SourceIndex string      `json:"source_index" yaml:"source_index"`
	StartedAt   time.Time   `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time   `json:"finished_at" yaml:"finished_at"`

	Scanned        int64 `json:"scanned" yaml:"scanned"`
	Written        int64 `json:"written" yaml:"written"`
	Failed         int64 `json:"failed" yaml:"failed"`
	Invalid        int64 `json:"invalid" yaml:"invalid"`
	InvalidWritten int64 `json:"invalid_written" yaml:"invalid_written"`
	InvalidFailed  int64 `json:"invalid_failed" yaml:"invalid_failed"`

	// Unflushed counts dated documents read but neither written nor failed
	// when the run aborted: pending in a bucket, queued, or in flight.
	Unflushed int64 `json:"unflushed,omitempty" yaml:"unflushed,omitempty"`

	BatchesFlushed int `json:"batches_flushed" yaml:"batches_flushed"`
	BatchesFailed  int `json:"batches_failed" yaml:"batches_failed"`

	Indices []IndexStats `json:"indices" yaml:"indices"`

	AbortCause string `json:"abort_cause,omitempty" yaml:"abort_cause,omitempty"`

	byIndex map[string]*IndexStats
}

func newReport(runID, source string) *Report {
	return &Report{
		RunID:       runID,
		State:       async.StateIdle,
		SourceIndex: source,
		byIndex:     make(map[string]*IndexStats),
	}
}

// Balanced reports whether every scanned document is accounted for.
// Unflushed is zero unless the run aborted.
func (r *Report) Balanced() bool {
	return r.Written+r.Failed+r.Invalid+r.Unflushed == r.Scanned
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Index returns the stats for name, or nil if nothing was sent there.
func (r *Report) Index(name string) *IndexStats {
	for i := range r.Indices {
		if r.Indices[i].Index == name {
			return &r.Indices[i]
		}
	}
	return r.byIndex[name]
}

func (r *Report) record(index string, invalid bool, written, failed int, batchFailed bool) {
	s, ok := r.byIndex[index]
	if !ok {
		s = &IndexStats{Index: index}
		r.byIndex[index] = s
	}
	s.Batches++
	s.Written += int64(written)
	s.Failed += int64(failed)

	r.BatchesFlushed++
	if batchFailed {
		s.FailedBatches++
		r.BatchesFailed++
	}

	if invalid {
		r.InvalidWritten += int64(written)
		r.InvalidFailed += int64(failed)
		return
	}
	r.Written += int64(written)
	r.Failed += int64(failed)
}

// finalize copies the per-index stats into Indices sorted by name.
func (r *Report) finalize() {
	r.Indices = make([]IndexStats, 0, len(r.byIndex))
	for _, s := range r.byIndex {
		r.Indices = append(r.Indices, *s)
	}
	sort.Slice(r.Indices, func(i, j int) bool { return r.Indices[i].Index < r.Indices[j].Index })
}
