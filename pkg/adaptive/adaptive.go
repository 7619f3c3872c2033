// Package adaptive sizes the pipeline from detected hardware and an estimate
// of how many documents the current input holds. It never fails: a broken
// probe degrades to a fixed conservative configuration.
package adaptive

import (
	"time"

	"github.com/xhad/distill/internal/types"
)

// PipelineConfig is computed once at startup and shared read-only afterwards.
type PipelineConfig struct {
	ExtractWorkers   int
	TransformWorkers int
	GenerateWorkers  int

	BatchSize     int
	QueueCapacity int

	FlushThresholdRecords int
	FlushInterval         time.Duration

	MemoryBudgetBytes int64
}

// TotalWorkers reports the sum across the three pools.
func (c PipelineConfig) TotalWorkers() int {
	return c.ExtractWorkers + c.TransformWorkers + c.GenerateWorkers
}

// Options carry the tunables that come from file config rather than probing.
type Options struct {
	HardWorkerCeiling     int
	FlushThresholdRecords int
	FlushInterval         time.Duration
	MemoryBudgetBytes     int64 // 0 = 50% of available memory
	AvgRecordSizeBytes    int64 // 0 = default estimate
}

const (
	workersPerCore     = 4
	defaultRecordBytes = 2048
	memoryBudgetShare  = 2 // probe-derived budget is available/2
)

// Size classes. Larger corpora get smaller batches but strictly more queue
// slots: many small batches in flight stall less than a few huge ones.
type sizeClass struct {
	maxDocs   int64 // exclusive upper bound, 0 = unbounded
	batchSize int
	queueCap  int
}

var sizeClasses = []sizeClass{
	{maxDocs: 10_000, batchSize: 200, queueCap: 32},    // small
	{maxDocs: 100_000, batchSize: 400, queueCap: 128},  // medium
	{maxDocs: 1_000_000, batchSize: 300, queueCap: 512}, // large
	{maxDocs: 0, batchSize: 200, queueCap: 2048},       // extreme
}

// Compute derives the pipeline configuration. estimatedDocs may be rough;
// only its size class matters.
func Compute(capacity types.Capacity, estimatedDocs int64, opts Options) PipelineConfig {
	if capacity.LogicalCores <= 0 {
		return Fallback(opts)
	}

	ceiling := opts.HardWorkerCeiling
	if ceiling < 3 {
		ceiling = 64
	}

	total := capacity.LogicalCores * workersPerCore
	if total > ceiling {
		total = ceiling
	}
	if total < 3 {
		total = 3
	}

	// Equal thirds; the remainder goes to the generate pool, which does the
	// most work per document.
	per := total / 3
	cfg := PipelineConfig{
		ExtractWorkers:   per,
		TransformWorkers: per,
		GenerateWorkers:  per + total%3,
	}

	class := classify(estimatedDocs)
	cfg.BatchSize = class.batchSize
	cfg.QueueCapacity = class.queueCap

	cfg.FlushInterval = opts.FlushInterval
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 15 * time.Second
	}

	cfg.MemoryBudgetBytes = opts.MemoryBudgetBytes
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = capacity.AvailableMemoryBytes / memoryBudgetShare
	}
	if cfg.MemoryBudgetBytes <= 0 {
		cfg.MemoryBudgetBytes = 1 << 30
	}

	threshold := opts.FlushThresholdRecords
	if threshold <= 0 {
		threshold = 25_000
	}
	cfg.FlushThresholdRecords = fitThreshold(threshold, cfg.GenerateWorkers, cfg.MemoryBudgetBytes, opts.AvgRecordSizeBytes)

	return cfg
}

// Fallback is the fixed conservative configuration used when hardware
// introspection is unavailable.
func Fallback(opts Options) PipelineConfig {
	interval := opts.FlushInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return PipelineConfig{
		ExtractWorkers:        2,
		TransformWorkers:      2,
		GenerateWorkers:       2,
		BatchSize:             100,
		QueueCapacity:         32,
		FlushThresholdRecords: 1000,
		FlushInterval:         interval,
		MemoryBudgetBytes:     1 << 30,
	}
}

// DrainTimeout bounds the drain phase: proportional to the batches fed into
// the pipeline, capped at the configured ceiling.
func DrainTimeout(batchesSent int64, ceiling time.Duration) time.Duration {
	timeout := 2*time.Second + time.Duration(batchesSent)*10*time.Millisecond
	if ceiling > 0 && timeout > ceiling {
		return ceiling
	}
	return timeout
}

func classify(estimatedDocs int64) sizeClass {
	for _, class := range sizeClasses {
		if class.maxDocs == 0 || estimatedDocs < class.maxDocs {
			return class
		}
	}
	return sizeClasses[len(sizeClasses)-1]
}

// fitThreshold shrinks the flush threshold until the worst-case unflushed
// data across all output-capable workers fits the memory budget.
func fitThreshold(threshold, outputWorkers int, budget, avgRecord int64) int {
	if avgRecord <= 0 {
		avgRecord = defaultRecordBytes
	}
	if outputWorkers < 1 {
		outputWorkers = 1
	}
	maxPerWorker := budget / (avgRecord * int64(outputWorkers))
	if maxPerWorker < 1 {
		return 1
	}
	if int64(threshold) > maxPerWorker {
		return int(maxPerWorker)
	}
	return threshold
}
