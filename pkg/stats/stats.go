// Package stats carries per-worker run counters and merges them into a
// final report. Workers own their counters; nothing else writes them, so a
// status monitor can read live totals without coordination.
package stats

import (
	"sync/atomic"
	"time"
)

// WorkerStats is one worker's counters. All fields are atomics so reads
// from the status monitor never race with worker increments.
type WorkerStats struct {
	DocumentsSeen    atomic.Int64
	Filtered         atomic.Int64
	Categorized      atomic.Int64
	ParseErrors      atomic.Int64
	RecordsGenerated atomic.Int64
	ShardsWritten    atomic.Int64
	QueueFullEvents  atomic.Int64
	Dropped          atomic.Int64
	Errors           atomic.Int64
}

// Registry holds one WorkerStats per worker slot. Slots are fixed at
// construction; a worker only ever touches its own slot.
type Registry struct {
	workers   []*WorkerStats
	startedAt time.Time
}

func NewRegistry(workerCount int) *Registry {
	workers := make([]*WorkerStats, workerCount)
	for i := range workers {
		workers[i] = &WorkerStats{}
	}
	return &Registry{workers: workers, startedAt: time.Now()}
}

// Worker returns the stats slot for the given worker id.
func (r *Registry) Worker(id int) *WorkerStats {
	return r.workers[id]
}

// Snapshot merges every worker's counters into totals. Callable while
// workers run; the result is then a live approximation, exact only after
// drain.
func (r *Registry) Snapshot() Totals {
	var t Totals
	for _, w := range r.workers {
		t.DocumentsSeen += w.DocumentsSeen.Load()
		t.Filtered += w.Filtered.Load()
		t.Categorized += w.Categorized.Load()
		t.ParseErrors += w.ParseErrors.Load()
		t.RecordsGenerated += w.RecordsGenerated.Load()
		t.ShardsWritten += w.ShardsWritten.Load()
		t.QueueFullEvents += w.QueueFullEvents.Load()
		t.Dropped += w.Dropped.Load()
		t.Errors += w.Errors.Load()
	}
	t.Elapsed = time.Since(r.startedAt)
	return t
}

// Totals is the merged view of all workers.
type Totals struct {
	DocumentsSeen    int64
	Filtered         int64
	Categorized      int64
	ParseErrors      int64
	RecordsGenerated int64
	ShardsWritten    int64
	QueueFullEvents  int64
	Dropped          int64
	Errors           int64
	Elapsed          time.Duration
}

// Report is the serialized run summary written at finalization.
type Report struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	ElapsedSeconds   float64   `json:"elapsed_seconds"`
	DocumentsSeen    int64     `json:"documents_seen"`
	Filtered         int64     `json:"filtered"`
	Categorized      int64     `json:"categorized"`
	ParseErrors      int64     `json:"parse_errors"`
	RecordsGenerated int64     `json:"records_generated"`
	ShardsWritten    int64     `json:"shards_written"`
	QueueFullEvents  int64     `json:"queue_full_events"`
	Dropped          int64     `json:"dropped"`
	Errors           int64     `json:"errors"`
	DocsPerSecond    float64   `json:"docs_per_second"`
	Workers          int       `json:"workers"`

	RecordsByCategory map[string]int64 `json:"records_by_category,omitempty"`

	// RecordsLost counts generated records surrendered because their shard
	// could not be written.
	RecordsLost int64 `json:"records_lost,omitempty"`
}

// BuildReport freezes the registry into a report.
func (r *Registry) BuildReport(runID string) Report {
	t := r.Snapshot()
	finished := time.Now()
	elapsed := finished.Sub(r.startedAt).Seconds()
	docsPerSec := 0.0
	if elapsed > 0 {
		docsPerSec = float64(t.DocumentsSeen) / elapsed
	}
	return Report{
		RunID:            runID,
		StartedAt:        r.startedAt,
		FinishedAt:       finished,
		ElapsedSeconds:   elapsed,
		DocumentsSeen:    t.DocumentsSeen,
		Filtered:         t.Filtered,
		Categorized:      t.Categorized,
		ParseErrors:      t.ParseErrors,
		RecordsGenerated: t.RecordsGenerated,
		ShardsWritten:    t.ShardsWritten,
		QueueFullEvents:  t.QueueFullEvents,
		Dropped:          t.Dropped,
		Errors:           t.Errors,
		DocsPerSecond:    docsPerSec,
		Workers:          len(r.workers),
	}
}
