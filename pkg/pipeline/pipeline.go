// Package pipeline wires the document source, the three stage worker pools
// and the shard writer together, and owns the drain and finalization
// protocol.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/xhad/distill/internal/models"
	"github.com/xhad/distill/internal/types"
	"github.com/xhad/distill/pkg/adaptive"
	"github.com/xhad/distill/pkg/classify"
	"github.com/xhad/distill/pkg/queue"
	"github.com/xhad/distill/pkg/stats"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// State is the controller's lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// BatchSource yields raw document batches until io.EOF. *source.Source
// satisfies it; tests feed slices through a stub.
type BatchSource interface {
	NextBatch() ([]models.RawDocument, error)
	Malformed() int64
	ParseErrors() int64
}

// Config assembles everything the controller needs. Zero durations and
// counts take defaults matching the rest of the pipeline.
type Config struct {
	Pipeline adaptive.PipelineConfig

	QueueTimeout    time.Duration
	MaxQueueRetries int
	DrainCeiling    time.Duration
	StatusInterval  time.Duration

	OutputDir string
}

// Controller runs the pipeline end to end.
type Controller struct {
	config     Config
	source     BatchSource
	cleaner    *classify.Cleaner
	classifier types.Classifier
	generator  types.Generator
	sink       types.ShardSink
	registry   *stats.Registry
	logger     *zap.Logger

	rawQueue      *queue.Queue[[]models.RawDocument]
	filteredQueue *queue.Queue[[]models.RawDocument]
	docQueue      *queue.Queue[models.CleanedDocument]

	state       atomic.Int32
	running     atomic.Bool
	batchesSent atomic.Int64

	// dropLog throttles drop warnings; under real overload there can be
	// thousands per second and the counters already carry the totals.
	dropLog *rate.Limiter

	// controllerSlot is the registry slot for counters not owned by any
	// worker: documents seen at the feed loop, source parse errors, shard
	// totals.
	controllerSlot int
}

// NewWithConfig builds a controller over the given collaborators. The
// registry gets one slot per worker plus one for the controller itself.
func NewWithConfig(config Config, src BatchSource, cleaner *classify.Cleaner,
	classifier types.Classifier, generator types.Generator,
	sink types.ShardSink, logger *zap.Logger) *Controller {

	if config.QueueTimeout <= 0 {
		config.QueueTimeout = 100 * time.Millisecond
	}
	if config.MaxQueueRetries < 1 {
		config.MaxQueueRetries = 5
	}
	if config.DrainCeiling <= 0 {
		config.DrainCeiling = 30 * time.Second
	}
	if config.StatusInterval <= 0 {
		config.StatusInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Pipeline.QueueCapacity < 1 {
		config.Pipeline.QueueCapacity = 32
	}

	total := config.Pipeline.TotalWorkers()
	c := &Controller{
		config:         config,
		source:         src,
		cleaner:        cleaner,
		classifier:     classifier,
		generator:      generator,
		sink:           sink,
		registry:       stats.NewRegistry(total + 1),
		logger:         logger,
		rawQueue:       queue.New[[]models.RawDocument](config.Pipeline.QueueCapacity),
		filteredQueue:  queue.New[[]models.RawDocument](config.Pipeline.QueueCapacity),
		docQueue:       queue.New[models.CleanedDocument](config.Pipeline.QueueCapacity),
		controllerSlot: total,
		dropLog:        rate.NewLimiter(rate.Limit(1), 5),
	}
	c.state.Store(int32(StateIdle))
	return c
}

func (c *Controller) State() State { return State(c.state.Load()) }

// Stats exposes the live registry for status monitors.
func (c *Controller) Stats() *stats.Registry { return c.registry }

// Run drives the whole lifecycle: feed, drain, finalize. Finalization is
// unconditional; whatever happens mid-run, buffered records get their flush
// attempt and a report comes back.
func (c *Controller) Run(ctx context.Context) (stats.Report, error) {
	c.state.Store(int32(StateRunning))
	c.running.Store(true)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go c.monitor(monitorCtx)

	// Cancellation is advisory: flip the flag, let workers finish their
	// in-flight item and observe it between items. monitorCtx also closes
	// when Run returns, which just re-clears an already-stopped flag.
	go func() {
		<-monitorCtx.Done()
		c.running.Store(false)
	}()

	var extractWG, transformWG, generateWG sync.WaitGroup
	slot := 0
	for i := 0; i < c.config.Pipeline.ExtractWorkers; i++ {
		extractWG.Add(1)
		go c.extractWorker(ctx, slot, &extractWG)
		slot++
	}
	for i := 0; i < c.config.Pipeline.TransformWorkers; i++ {
		transformWG.Add(1)
		go c.transformWorker(ctx, slot, &transformWG)
		slot++
	}
	for i := 0; i < c.config.Pipeline.GenerateWorkers; i++ {
		generateWG.Add(1)
		go c.generateWorker(ctx, slot, slot-c.config.Pipeline.ExtractWorkers-c.config.Pipeline.TransformWorkers, &generateWG)
		slot++
	}

	feedErr := c.feed(ctx)

	c.state.Store(int32(StateDraining))
	c.logger.Info("draining pipeline",
		zap.Int64("batches_sent", c.batchesSent.Load()))

	drainTimeout := adaptive.DrainTimeout(c.batchesSent.Load(), c.config.DrainCeiling)
	drainErr := c.drain(&extractWG, &transformWG, &generateWG, drainTimeout)

	report, finalizeErr := c.finalize()

	switch {
	case feedErr != nil:
		return report, feedErr
	case drainErr != nil:
		return report, drainErr
	default:
		return report, finalizeErr
	}
}

// feed pulls batches from the source into the raw queue until exhaustion or
// cancellation.
func (c *Controller) feed(ctx context.Context) error {
	ownStats := c.registry.Worker(c.controllerSlot)
	for c.running.Load() {
		batch, err := c.source.NextBatch()
		if err != nil {
			break // io.EOF or a terminal stream error; both end feeding
		}
		ownStats.DocumentsSeen.Add(int64(len(batch)))
		if !putWithRetry(c, ctx, c.rawQueue, batch, ownStats, int64(len(batch))) && c.dropLog.Allow() {
			c.logger.Warn("dropped raw batch under backpressure",
				zap.Int("batch_size", len(batch)))
		}
		c.batchesSent.Add(1)
	}
	// Pages the source skipped never reached a batch, but they were seen.
	// Counting them on both sides keeps the ledger balanced: seen equals
	// filtered plus categorized plus parse errors plus dropped.
	skipped := c.source.Malformed() + c.source.ParseErrors()
	ownStats.DocumentsSeen.Add(skipped)
	ownStats.ParseErrors.Add(skipped)
	return nil
}

// drain stops the pools stage by stage: sentinels into a pool's input
// queue, then wait for that pool before signalling the next. Downstream
// queues keep their producers alive until everything upstream has stopped,
// so no item is stranded behind a sentinel.
func (c *Controller) drain(extractWG, transformWG, generateWG *sync.WaitGroup, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	stages := []struct {
		name      string
		sentinels int
		stop      func() bool
		wg        *sync.WaitGroup
	}{
		{"extract", c.config.Pipeline.ExtractWorkers, func() bool { return c.rawQueue.PutStop(c.config.QueueTimeout) }, extractWG},
		{"transform", c.config.Pipeline.TransformWorkers, func() bool { return c.filteredQueue.PutStop(c.config.QueueTimeout) }, transformWG},
		{"generate", c.config.Pipeline.GenerateWorkers, func() bool { return c.docQueue.PutStop(c.config.QueueTimeout) }, generateWG},
	}

	for _, stage := range stages {
		// Oversupply sentinels so every worker sees one even when several
		// drain the queue at once. Delivery runs beside the wait: a full
		// queue rejects sentinel puts until its consumers make room, and a
		// pool that already exited must not block delivery forever.
		stopDeliver := make(chan struct{})
		go func(target int, put func() bool) {
			delivered := 0
			for delivered < target {
				select {
				case <-stopDeliver:
					return
				default:
				}
				if put() {
					delivered++
				}
			}
		}(stage.sentinels*2, stage.stop)

		finished := waitWithDeadline(stage.wg, deadline)
		close(stopDeliver)
		if !finished {
			c.running.Store(false)
			return fmt.Errorf("drain timed out after %s waiting for %s pool", timeout, stage.name)
		}
	}
	return nil
}

func waitWithDeadline(wg *sync.WaitGroup, deadline time.Time) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// finalize force-flushes every buffer, merges counters and writes the run
// summary. Runs even after a drain timeout.
func (c *Controller) finalize() (stats.Report, error) {
	defer c.state.Store(int32(StateFinalized))

	flushErr := c.sink.FlushAll()
	if flushErr != nil {
		c.logger.Error("final flush failed", zap.Error(flushErr))
	}

	if counter, ok := c.sink.(interface{ ShardsWritten() int }); ok {
		c.registry.Worker(c.controllerSlot).ShardsWritten.Store(int64(counter.ShardsWritten()))
	}

	report := c.registry.BuildReport(uuid.NewString())
	if byCat, ok := c.sink.(interface{ RecordsByCategory() map[string]int64 }); ok {
		report.RecordsByCategory = byCat.RecordsByCategory()
	}
	if lost, ok := c.sink.(interface{ LostRecords() int64 }); ok {
		report.RecordsLost = lost.LostRecords()
	}
	if err := c.writeReport(report); err != nil {
		c.logger.Error("failed to write run summary", zap.Error(err))
		if flushErr == nil {
			flushErr = err
		}
	}

	c.logger.Info("pipeline finalized",
		zap.Int64("documents_seen", report.DocumentsSeen),
		zap.Int64("records_generated", report.RecordsGenerated),
		zap.Int64("shards_written", report.ShardsWritten),
		zap.Int64("dropped", report.Dropped),
		zap.Int64("records_lost", report.RecordsLost),
		zap.Float64("docs_per_second", report.DocsPerSecond))
	return report, flushErr
}

func (c *Controller) writeReport(report stats.Report) error {
	if c.config.OutputDir == "" {
		return nil
	}
	dir := filepath.Join(c.config.OutputDir, "stats")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := sonic.ConfigDefault.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "summary.json"), data, 0o644)
}

// monitor logs a progress line at the status interval while the run is
// active.
func (c *Controller) monitor(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := c.registry.Snapshot()
			fields := []zap.Field{
				zap.String("state", c.State().String()),
				zap.Int64("documents_seen", t.DocumentsSeen),
				zap.Int64("categorized", t.Categorized),
				zap.Int64("records_generated", t.RecordsGenerated),
				zap.Float64("docs_per_second", float64(t.DocumentsSeen)/t.Elapsed.Seconds()),
				zap.Int("raw_queue", c.rawQueue.Len()),
				zap.Int("filtered_queue", c.filteredQueue.Len()),
				zap.Int("doc_queue", c.docQueue.Len()),
			}
			if byCat, ok := c.sink.(interface{ RecordsByCategory() map[string]int64 }); ok {
				fields = append(fields, zap.Any("records_by_category", byCat.RecordsByCategory()))
			}
			c.logger.Info("pipeline status", fields...)
		}
	}
}

// putWithRetry applies the backpressure discipline: blocking put with
// timeout, exponential backoff across retries, then a counted drop. docs is
// how many documents the item represents, for the drop counter.
func putWithRetry[T any](c *Controller, ctx context.Context, q *queue.Queue[T], item T, ws *stats.WorkerStats, docs int64) bool {
	backoff := c.config.QueueTimeout
	for attempt := 0; attempt < c.config.MaxQueueRetries; attempt++ {
		if ctx.Err() != nil && !c.running.Load() {
			break
		}
		if q.Put(item, backoff) {
			return true
		}
		ws.QueueFullEvents.Add(1)
		backoff *= 2
	}
	ws.Dropped.Add(docs)
	return false
}
