// Package writer buffers finished records per category and worker and
// flushes them to sharded JSONL files.
package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/xhad/distill/internal/models"
)

// ErrUnknownCategory rejects records outside the fixed category set the
// writer was built with.
var ErrUnknownCategory = errors.New("unknown category")

// Config configures the shard writer.
type Config struct {
	OutputDir      string
	Categories     []string // fixed category set; directories created eagerly
	Workers        int      // number of generate workers owning buffers
	FlushThreshold int      // records per buffer before an automatic flush
	FlushInterval  time.Duration
	CompressOutput bool // write .jsonl.gz shards
}

// Writer owns one buffer per (category, worker) pair. Each buffer has a
// single owning worker, so its mutex is uncontended on the append path; it
// exists so a finalizing flush can run while a straggler worker is still
// finishing its in-flight document. The buffer map is built once and never
// mutated afterward.
type Writer struct {
	config  Config
	buffers map[bufferKey]*buffer
	lost    atomic.Int64 // records surrendered after a failed flush retry
}

type bufferKey struct {
	category string
	worker   int
}

type buffer struct {
	mu        sync.Mutex
	records   []models.ConversationRecord
	sequence  int
	written   int // successful flushes; sequence also counts failed attempts
	lastFlush time.Time
	flushed   atomic.Int64 // records on disk; atomic so monitors can read live
}

func NewWithConfig(config Config) (*Writer, error) {
	if config.FlushThreshold < 1 {
		config.FlushThreshold = 25000
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 15 * time.Second
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	buffers := make(map[bufferKey]*buffer, len(config.Categories)*config.Workers)
	now := time.Now()
	for _, category := range config.Categories {
		dir := filepath.Join(config.OutputDir, category)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create category directory: %w", err)
		}
		for worker := 0; worker < config.Workers; worker++ {
			buffers[bufferKey{category, worker}] = &buffer{lastFlush: now}
		}
	}

	return &Writer{config: config, buffers: buffers}, nil
}

// Append adds a record to the owning worker's buffer for the record's
// category and flushes when the buffer crosses the threshold or has sat
// unflushed past the interval. Only the owning worker may call this for its
// workerID.
func (w *Writer) Append(category string, workerID int, rec models.ConversationRecord) error {
	buf, ok := w.buffers[bufferKey{category, workerID}]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.records = append(buf.records, rec)

	if len(buf.records) >= w.config.FlushThreshold ||
		time.Since(buf.lastFlush) >= w.config.FlushInterval {
		return w.flushBuffer(category, workerID, buf)
	}
	return nil
}

// Flush writes one pair's buffer to a new shard. Flushing an empty buffer
// is a no-op and produces no file.
func (w *Writer) Flush(category string, workerID int) error {
	buf, ok := w.buffers[bufferKey{category, workerID}]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return w.flushBuffer(category, workerID, buf)
}

// FlushWorker flushes every category buffer owned by one worker. Called by
// the worker itself during drain.
func (w *Writer) FlushWorker(workerID int) error {
	for _, category := range w.config.Categories {
		if err := w.Flush(category, workerID); err != nil {
			return err
		}
	}
	return nil
}

// FlushAll force-flushes every buffer. Safe to call while workers are still
// appending; the controller calls it during finalization, which can overlap
// a straggler worker after a drain timeout.
func (w *Writer) FlushAll() error {
	var firstErr error
	for _, category := range w.config.Categories {
		for worker := 0; worker < w.config.Workers; worker++ {
			if err := w.Flush(category, worker); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// BufferedRecords reports records currently held in memory across all
// buffers.
func (w *Writer) BufferedRecords() int {
	total := 0
	for _, buf := range w.buffers {
		buf.mu.Lock()
		total += len(buf.records)
		buf.mu.Unlock()
	}
	return total
}

// ShardsWritten reports how many shard files have been produced so far.
func (w *Writer) ShardsWritten() int {
	total := 0
	for _, buf := range w.buffers {
		buf.mu.Lock()
		total += buf.written
		buf.mu.Unlock()
	}
	return total
}

// LostRecords reports records surrendered because their shard could not be
// written after a retry.
func (w *Writer) LostRecords() int64 {
	return w.lost.Load()
}

// RecordsByCategory reports flushed records per category. Reads only atomic
// counters, so it is safe while workers are still appending.
func (w *Writer) RecordsByCategory() map[string]int64 {
	out := make(map[string]int64, len(w.config.Categories))
	for key, buf := range w.buffers {
		out[key.category] += buf.flushed.Load()
	}
	return out
}

// flushBuffer writes and resets one buffer. Callers hold buf.mu.
func (w *Writer) flushBuffer(category string, workerID int, buf *buffer) error {
	if len(buf.records) == 0 {
		return nil
	}

	path := w.shardPath(category, workerID, buf.sequence)
	err := w.writeShard(path, buf.records)
	if err != nil {
		// One retry covers transient filesystem hiccups; after that the
		// records are surrendered so the buffer cannot grow without bound.
		err = w.writeShard(path, buf.records)
	}

	if err == nil {
		buf.flushed.Add(int64(len(buf.records)))
		buf.written++
	} else {
		w.lost.Add(int64(len(buf.records)))
	}
	buf.records = buf.records[:0]
	buf.sequence++
	buf.lastFlush = time.Now()
	if err != nil {
		return fmt.Errorf("failed to write shard %s: %w", path, err)
	}
	return nil
}

func (w *Writer) shardPath(category string, workerID, sequence int) string {
	name := fmt.Sprintf("%s_w%02d_s%04d.jsonl", category, workerID, sequence)
	if w.config.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(w.config.OutputDir, category, name)
}

func (w *Writer) writeShard(path string, records []models.ConversationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var sink io.Writer = f
	var gz *gzip.Writer
	if w.config.CompressOutput {
		gz = gzip.NewWriter(f)
		sink = gz
	}

	for _, rec := range records {
		line, err := sonic.Marshal(rec)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := sink.Write(append(line, '\n')); err != nil {
			f.Close()
			return err
		}
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}
