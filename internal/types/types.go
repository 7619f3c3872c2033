package types

import (
	"context"

	"github.com/xhad/distill/internal/models"
)

// Classifier is the content classification collaborator. It is treated as a
// pure function with bounded latency; per-document failures are counted by
// the caller, never fatal.
type Classifier interface {
	// Categories returns the fixed closed category set. Output directories
	// are created eagerly from this list at startup.
	Categories() []string
	Classify(title, normalizedBody string) models.Classification
}

// Generator produces conversation records for a categorized document.
type Generator interface {
	GenerateConversations(ctx context.Context, doc models.CategorizedDocument) ([]models.ConversationRecord, error)
}

// Capacity describes the hardware the pipeline is running on.
type Capacity struct {
	LogicalCores         int
	AvailableMemoryBytes int64
}

// CapacityProbe detects hardware capacity. A failing probe is not fatal;
// callers fall back to conservative defaults.
type CapacityProbe interface {
	Probe() (Capacity, error)
}

// ShardSink receives finished records keyed by category and worker. The
// pipeline's generate workers are its only callers; each (category, worker)
// buffer is owned by exactly one worker.
type ShardSink interface {
	Append(category string, workerID int, rec models.ConversationRecord) error
	Flush(category string, workerID int) error
	FlushWorker(workerID int) error
	FlushAll() error
}
