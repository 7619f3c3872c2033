package pipeline

import (
	"context"
	"sync"

	"github.com/xhad/distill/internal/models"
	"go.uber.org/zap"
)

// Each worker runs the same loop shape: bounded get, exit on sentinel,
// re-check the running flag on timeout, process on payload. A bad document
// is skipped and counted, never fatal to its batch.

func (c *Controller) extractWorker(ctx context.Context, slot int, wg *sync.WaitGroup) {
	defer wg.Done()
	ws := c.registry.Worker(slot)

	for {
		batch, ok, stop := c.rawQueue.Get(c.config.QueueTimeout)
		if stop {
			return
		}
		if !ok {
			if !c.running.Load() {
				return
			}
			continue
		}

		kept := make([]models.RawDocument, 0, len(batch))
		for _, doc := range batch {
			if c.cleaner.AcceptsStructurally(doc) {
				kept = append(kept, doc)
			} else {
				ws.Filtered.Add(1)
			}
		}
		if len(kept) == 0 {
			continue
		}
		if !putWithRetry(c, ctx, c.filteredQueue, kept, ws, int64(len(kept))) && c.dropLog.Allow() {
			c.logger.Warn("dropped filtered batch under backpressure",
				zap.Int("worker", slot), zap.Int("batch_size", len(kept)))
		}
	}
}

func (c *Controller) transformWorker(ctx context.Context, slot int, wg *sync.WaitGroup) {
	defer wg.Done()
	ws := c.registry.Worker(slot)

	for {
		batch, ok, stop := c.filteredQueue.Get(c.config.QueueTimeout)
		if stop {
			return
		}
		if !ok {
			if !c.running.Load() {
				return
			}
			continue
		}

		for _, doc := range batch {
			cleaned, accepted := c.cleaner.Clean(doc)
			if !accepted {
				ws.Filtered.Add(1)
				continue
			}
			if !putWithRetry(c, ctx, c.docQueue, cleaned, ws, 1) && c.dropLog.Allow() {
				c.logger.Warn("dropped cleaned document under backpressure",
					zap.Int("worker", slot), zap.String("title", doc.Title))
			}
		}
	}
}

func (c *Controller) generateWorker(ctx context.Context, slot, localID int, wg *sync.WaitGroup) {
	defer wg.Done()
	ws := c.registry.Worker(slot)

	// Whatever ends the loop, this worker's buffers go to disk before the
	// controller merges shard counts.
	defer func() {
		if err := c.sink.FlushWorker(localID); err != nil {
			ws.Errors.Add(1)
			c.logger.Error("failed to flush worker buffers on exit",
				zap.Int("worker", slot), zap.Error(err))
		}
	}()

	for {
		doc, ok, stop := c.docQueue.Get(c.config.QueueTimeout)
		if stop {
			return
		}
		if !ok {
			if !c.running.Load() {
				return
			}
			continue
		}

		classification := c.classifier.Classify(doc.Title, doc.NormalizedBody)
		categorized := models.CategorizedDocument{
			CleanedDocument: doc,
			Category:        classification.Category,
			Subcategory:     classification.Subcategory,
			Confidence:      classification.Confidence,
		}
		ws.Categorized.Add(1)

		records, err := c.generator.GenerateConversations(ctx, categorized)
		if err != nil {
			ws.Errors.Add(1)
			c.logger.Warn("generation failed for document",
				zap.Int("worker", slot), zap.String("title", doc.Title), zap.Error(err))
			continue
		}

		for _, rec := range records {
			if err := c.sink.Append(rec.Category, localID, rec); err != nil {
				ws.Errors.Add(1)
				c.logger.Error("failed to buffer record",
					zap.Int("worker", slot), zap.String("category", rec.Category), zap.Error(err))
				continue
			}
			ws.RecordsGenerated.Add(1)
		}
	}
}
