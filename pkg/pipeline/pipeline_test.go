package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/distill/internal/models"
	"github.com/xhad/distill/pkg/adaptive"
	"github.com/xhad/distill/pkg/classify"
	"github.com/xhad/distill/pkg/pipeline"
	"github.com/xhad/distill/pkg/writer"
)

type sliceSource struct {
	batches   [][]models.RawDocument
	next      int
	malformed int64
	parseErrs int64
}

func (s *sliceSource) NextBatch() ([]models.RawDocument, error) {
	if s.next >= len(s.batches) {
		return nil, io.EOF
	}
	batch := s.batches[s.next]
	s.next++
	return batch, nil
}

func (s *sliceSource) Malformed() int64   { return s.malformed }
func (s *sliceSource) ParseErrors() int64 { return s.parseErrs }

type slowGenerator struct {
	delay time.Duration
}

func (g slowGenerator) GenerateConversations(ctx context.Context, doc models.CategorizedDocument) ([]models.ConversationRecord, error) {
	time.Sleep(g.delay)
	return []models.ConversationRecord{{
		Question: "q", Answer: "a",
		QuestionType: models.QuestionFundamental,
		SourceTitle:  doc.Title, Category: doc.Category, Subcategory: doc.Subcategory,
		GeneratedAt: time.Now().UTC(),
	}}, nil
}

type flushRecordingSink struct {
	*writer.Writer
	workerFlushes atomic.Int64
}

func (s *flushRecordingSink) FlushWorker(workerID int) error {
	s.workerFlushes.Add(1)
	return s.Writer.FlushWorker(workerID)
}

func articleBody() string {
	return strings.Repeat("the river flows through the mountain region into the capital city ", 6)
}

func makeDocs(n int) []models.RawDocument {
	docs := make([]models.RawDocument, n)
	for i := range docs {
		docs[i] = models.RawDocument{
			Title: fmt.Sprintf("Article %d", i),
			Body:  articleBody(),
		}
	}
	return docs
}

func batchesOf(docs []models.RawDocument, size int) [][]models.RawDocument {
	var batches [][]models.RawDocument
	for len(docs) > 0 {
		n := size
		if n > len(docs) {
			n = len(docs)
		}
		batches = append(batches, docs[:n])
		docs = docs[n:]
	}
	return batches
}

func newController(t *testing.T, src pipeline.BatchSource, pc adaptive.PipelineConfig, cfg pipeline.Config) (*pipeline.Controller, *writer.Writer, string) {
	t.Helper()
	classifier := classify.NewKeywordClassifier()
	outputDir := t.TempDir()

	sink, err := writer.NewWithConfig(writer.Config{
		OutputDir:      outputDir,
		Categories:     classifier.Categories(),
		Workers:        pc.GenerateWorkers,
		FlushThreshold: pc.FlushThresholdRecords,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)

	cfg.Pipeline = pc
	cfg.OutputDir = outputDir
	ctrl := pipeline.NewWithConfig(cfg, src, classify.NewCleaner(), classifier,
		classify.NewTemplateGenerator(), sink, nil)
	return ctrl, sink, outputDir
}

func TestEndToEnd(t *testing.T) {
	docs := makeDocs(10)
	src := &sliceSource{batches: batchesOf(docs, 4)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 2,
		BatchSize: 4, QueueCapacity: 16, FlushThresholdRecords: 1000,
	}
	ctrl, sink, outputDir := newController(t, src, pc, pipeline.Config{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateFinalized, ctrl.State())
	assert.Equal(t, int64(10), report.DocumentsSeen)
	assert.Equal(t, int64(10), report.Categorized)
	assert.Equal(t, int64(0), report.Filtered)
	assert.Equal(t, int64(0), report.Dropped)
	assert.GreaterOrEqual(t, report.RecordsGenerated, int64(10))
	assert.LessOrEqual(t, report.RecordsGenerated, int64(80))

	// Drain completeness: nothing may remain buffered after finalization.
	assert.Equal(t, 0, sink.BufferedRecords())
	assert.Positive(t, report.ShardsWritten)

	summary, err := os.ReadFile(filepath.Join(outputDir, "stats", "summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), `"documents_seen": 10`)
}

func TestConservation(t *testing.T) {
	docs := makeDocs(8)
	// Two documents fail the structural length filter.
	docs[2].Body = "too short"
	docs[5].Body = "also short"

	src := &sliceSource{batches: batchesOf(docs, 3)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 2, TransformWorkers: 2, GenerateWorkers: 2,
		BatchSize: 3, QueueCapacity: 16, FlushThresholdRecords: 1000,
	}
	ctrl, _, _ := newController(t, src, pc, pipeline.Config{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(8), report.DocumentsSeen)
	assert.Equal(t, int64(2), report.Filtered)
	assert.Equal(t, int64(6), report.Categorized)
	assert.Equal(t, report.DocumentsSeen,
		report.Filtered+report.Categorized+report.ParseErrors+report.Dropped)
}

func TestConservationWithMalformedPages(t *testing.T) {
	// Pages the source skips as unparseable still count as seen.
	src := &sliceSource{
		batches:   batchesOf(makeDocs(4), 2),
		malformed: 3,
		parseErrs: 1,
	}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 1,
		BatchSize: 2, QueueCapacity: 8, FlushThresholdRecords: 1000,
	}
	ctrl, _, _ := newController(t, src, pc, pipeline.Config{})

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(8), report.DocumentsSeen)
	assert.Equal(t, int64(4), report.ParseErrors)
	assert.Equal(t, int64(4), report.Categorized)
	assert.Equal(t, report.DocumentsSeen,
		report.Filtered+report.Categorized+report.ParseErrors+report.Dropped)
}

func TestOverloadDropsButFinalizes(t *testing.T) {
	docs := makeDocs(40)
	src := &sliceSource{batches: batchesOf(docs, 1)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 1,
		BatchSize: 1, QueueCapacity: 1, FlushThresholdRecords: 1000,
	}
	classifier := classify.NewKeywordClassifier()
	outputDir := t.TempDir()
	sink, err := writer.NewWithConfig(writer.Config{
		OutputDir:      outputDir,
		Categories:     classifier.Categories(),
		Workers:        1,
		FlushThreshold: 1000,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)

	ctrl := pipeline.NewWithConfig(pipeline.Config{
		Pipeline:        pc,
		QueueTimeout:    time.Millisecond,
		MaxQueueRetries: 2,
		DrainCeiling:    10 * time.Second,
		OutputDir:       outputDir,
	}, src, classify.NewCleaner(), classifier, slowGenerator{delay: 20 * time.Millisecond}, sink, nil)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateFinalized, ctrl.State())
	assert.Positive(t, report.Dropped)
	assert.Positive(t, report.QueueFullEvents)
	// The valve sheds load; it never loses the accounting.
	assert.Equal(t, report.DocumentsSeen,
		report.Filtered+report.Categorized+report.ParseErrors+report.Dropped)
	assert.Equal(t, 0, sink.BufferedRecords())
}

func TestDrainTimeoutStillFlushesEverything(t *testing.T) {
	docs := makeDocs(6)
	src := &sliceSource{batches: batchesOf(docs, 2)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 1,
		BatchSize: 2, QueueCapacity: 8, FlushThresholdRecords: 1000,
	}
	classifier := classify.NewKeywordClassifier()
	outputDir := t.TempDir()
	sink, err := writer.NewWithConfig(writer.Config{
		OutputDir:      outputDir,
		Categories:     classifier.Categories(),
		Workers:        1,
		FlushThreshold: 1000,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)

	// The generate worker is still mid-document when the drain ceiling
	// expires, so finalization overlaps its remaining appends.
	ctrl := pipeline.NewWithConfig(pipeline.Config{
		Pipeline:     pc,
		DrainCeiling: 50 * time.Millisecond,
		OutputDir:    outputDir,
	}, src, classify.NewCleaner(), classifier,
		slowGenerator{delay: 300 * time.Millisecond}, sink, nil)

	_, err = ctrl.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drain timed out")
	assert.Equal(t, pipeline.StateFinalized, ctrl.State())

	// The straggler finishes its in-flight work and flushes on exit.
	assert.Eventually(t, func() bool { return sink.BufferedRecords() == 0 },
		10*time.Second, 20*time.Millisecond)
}

func TestGenerateWorkersFlushBuffersOnExit(t *testing.T) {
	src := &sliceSource{batches: batchesOf(makeDocs(6), 2)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 2,
		BatchSize: 2, QueueCapacity: 8, FlushThresholdRecords: 1000,
	}
	classifier := classify.NewKeywordClassifier()
	inner, err := writer.NewWithConfig(writer.Config{
		OutputDir:      t.TempDir(),
		Categories:     classifier.Categories(),
		Workers:        2,
		FlushThreshold: 1000,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)
	sink := &flushRecordingSink{Writer: inner}

	ctrl := pipeline.NewWithConfig(pipeline.Config{Pipeline: pc}, src,
		classify.NewCleaner(), classifier, classify.NewTemplateGenerator(), sink, nil)

	_, err = ctrl.Run(context.Background())
	require.NoError(t, err)

	// Each generate worker flushes its own buffers exactly once on the way
	// out, before the controller's final sweep.
	assert.Equal(t, int64(2), sink.workerFlushes.Load())
	assert.Equal(t, 0, inner.BufferedRecords())
}

func TestCancellationStillFinalizes(t *testing.T) {
	docs := makeDocs(100)
	src := &sliceSource{batches: batchesOf(docs, 2)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 1,
		BatchSize: 2, QueueCapacity: 4, FlushThresholdRecords: 1000,
	}
	ctrl, sink, _ := newController(t, src, pc, pipeline.Config{DrainCeiling: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ctrl.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, pipeline.StateFinalized, ctrl.State())
	assert.Equal(t, 0, sink.BufferedRecords())
}

func TestStateTransitionsWithNoopCollaborators(t *testing.T) {
	src := &sliceSource{batches: batchesOf(makeDocs(4), 2)}
	pc := adaptive.PipelineConfig{
		ExtractWorkers: 1, TransformWorkers: 1, GenerateWorkers: 1,
		BatchSize: 2, QueueCapacity: 4, FlushThresholdRecords: 1000,
	}
	classifier := classify.NoopClassifier{}
	sink, err := writer.NewWithConfig(writer.Config{
		OutputDir:      t.TempDir(),
		Categories:     classifier.Categories(),
		Workers:        1,
		FlushThreshold: 1000,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)

	ctrl := pipeline.NewWithConfig(pipeline.Config{Pipeline: pc}, src,
		classify.NewCleaner(), classifier, classify.NoopGenerator{}, sink, nil)

	assert.Equal(t, pipeline.StateIdle, ctrl.State())
	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateFinalized, ctrl.State())
	assert.Equal(t, int64(4), report.RecordsGenerated)
	assert.Equal(t, int64(4), report.RecordsByCategory[classify.DefaultCategory])
}
