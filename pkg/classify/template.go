package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xhad/distill/internal/models"
)

type questionTemplate struct {
	format   string
	kind     models.QuestionType
	answerer func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64)
}

var dateRe = regexp.MustCompile(`\b(\d{1,2}\s+\w+\s+\d{4}|\d{4})\b`)
var locationRe = regexp.MustCompile(`(?i)\b(?:located in|situated in|found in|capital of|part of)\s+([A-Z][\w\s,]{2,40})`)

// TemplateGenerator builds question/answer pairs from fixed per-category
// question templates, answering them by extracting sentences, dates or
// locations from the cleaned body. No model call, no network.
type TemplateGenerator struct {
	maxPerDocument int
}

type TemplateGeneratorConfig struct {
	MaxPerDocument int
}

func NewTemplateGenerator() *TemplateGenerator {
	return NewTemplateGeneratorWithConfig(TemplateGeneratorConfig{})
}

func NewTemplateGeneratorWithConfig(cfg TemplateGeneratorConfig) *TemplateGenerator {
	if cfg.MaxPerDocument < 1 {
		cfg.MaxPerDocument = 4
	}
	return &TemplateGenerator{maxPerDocument: cfg.MaxPerDocument}
}

var templates = []questionTemplate{
	{
		format: "What is %s?",
		kind:   models.QuestionFundamental,
		answerer: func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64) {
			return g.leadSentence(doc.NormalizedBody)
		},
	},
	{
		format: "Can you explain what %s is about?",
		kind:   models.QuestionFundamental,
		answerer: func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64) {
			return g.summary(doc.NormalizedBody)
		},
	},
	{
		format: "When did events related to %s take place?",
		kind:   models.QuestionSpecific,
		answerer: func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64) {
			if m := dateRe.FindString(doc.NormalizedBody); m != "" {
				return fmt.Sprintf("Key dates related to %s include %s.", doc.Title, m), 0.9
			}
			return "", 0
		},
	},
	{
		format: "Where is %s located or associated with?",
		kind:   models.QuestionSpecific,
		answerer: func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64) {
			if m := locationRe.FindStringSubmatch(doc.NormalizedBody); m != nil {
				place := strings.TrimSpace(m[1])
				return fmt.Sprintf("%s is associated with %s.", doc.Title, place), 0.9
			}
			return "", 0
		},
	},
	{
		format: "What are the key facts about %s?",
		kind:   models.QuestionSpecific,
		answerer: func(g *TemplateGenerator, doc models.CategorizedDocument) (string, float64) {
			return g.summary(doc.NormalizedBody)
		},
	},
}

// GenerateConversations produces up to the configured number of records.
// Templates whose answerer finds nothing usable are skipped, so a short
// document may yield fewer records; it always yields at least one.
func (g *TemplateGenerator) GenerateConversations(ctx context.Context, doc models.CategorizedDocument) ([]models.ConversationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]models.ConversationRecord, 0, g.maxPerDocument)
	for _, tmpl := range templates {
		if len(records) >= g.maxPerDocument {
			break
		}
		answer, provenance := tmpl.answerer(g, doc)
		if answer == "" {
			continue
		}
		records = append(records, models.ConversationRecord{
			Question:     fmt.Sprintf(tmpl.format, doc.Title),
			Answer:       answer,
			QuestionType: tmpl.kind,
			QualityScore: provenance * doc.Confidence,
			SourceTitle:  doc.Title,
			Category:     doc.Category,
			Subcategory:  doc.Subcategory,
			GeneratedAt:  now,
		})
	}

	if len(records) == 0 {
		answer, provenance := g.summary(doc.NormalizedBody)
		records = append(records, models.ConversationRecord{
			Question:     fmt.Sprintf("Tell me about %s.", doc.Title),
			Answer:       answer,
			QuestionType: models.QuestionFundamental,
			QualityScore: provenance * doc.Confidence,
			SourceTitle:  doc.Title,
			Category:     doc.Category,
			Subcategory:  doc.Subcategory,
			GeneratedAt:  now,
		})
	}
	return records, nil
}

// leadSentence returns the first sentence between 30 and 200 characters,
// scored as a strong answer. Articles usually define their subject there.
func (g *TemplateGenerator) leadSentence(body string) (string, float64) {
	for _, sentence := range strings.SplitAfter(body, ". ") {
		s := strings.TrimSpace(sentence)
		if len(s) >= 30 && len(s) <= 200 {
			if !strings.HasSuffix(s, ".") {
				s += "."
			}
			return s, 1.0
		}
	}
	return g.summary(body)
}

// summary falls back to a truncated prefix, scored lower than an extracted
// sentence.
func (g *TemplateGenerator) summary(body string) (string, float64) {
	s := body
	if len(s) > 200 {
		cut := strings.LastIndex(s[:200], " ")
		if cut < 100 {
			cut = 200
		}
		s = strings.TrimSpace(s[:cut]) + "..."
	}
	return s, 0.6
}
