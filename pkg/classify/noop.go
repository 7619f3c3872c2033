package classify

import (
	"context"

	"github.com/xhad/distill/internal/models"
)

// NoopClassifier maps everything to the default category. Injected in tests
// that exercise pipeline mechanics rather than classification.
type NoopClassifier struct{}

func (NoopClassifier) Categories() []string { return []string{DefaultCategory} }

func (NoopClassifier) Classify(title, normalizedBody string) models.Classification {
	return models.Classification{
		Category:    DefaultCategory,
		Subcategory: DefaultCategory,
		Confidence:  1,
	}
}

// NoopGenerator emits one minimal record per document.
type NoopGenerator struct{}

func (NoopGenerator) GenerateConversations(ctx context.Context, doc models.CategorizedDocument) ([]models.ConversationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []models.ConversationRecord{{
		Question:     doc.Title,
		Answer:       doc.NormalizedBody,
		QuestionType: models.QuestionFundamental,
		QualityScore: doc.Confidence,
		SourceTitle:  doc.Title,
		Category:     doc.Category,
		Subcategory:  doc.Subcategory,
	}}, nil
}
