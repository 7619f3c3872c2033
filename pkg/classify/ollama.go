package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/distill/internal/models"
	"golang.org/x/time/rate"
)

// OllamaGeneratorConfig configures the model-backed generator.
type OllamaGeneratorConfig struct {
	Model          string
	BaseURL        string  // Ollama server URL
	MaxPerDocument int
	RateLimit      float64 // requests per second across all workers
}

// OllamaGenerator asks a local model for question/answer pairs instead of
// filling templates. One shared rate limiter gates all workers so a large
// pool cannot flood the model server.
type OllamaGenerator struct {
	config   OllamaGeneratorConfig
	llm      llms.Model
	limiter  *rate.Limiter
	fallback *TemplateGenerator
}

// NewOllamaGenerator creates a generator backed by an Ollama server.
func NewOllamaGenerator(config OllamaGeneratorConfig) (*OllamaGenerator, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxPerDocument < 1 {
		config.MaxPerDocument = 4
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &OllamaGenerator{
		config:   config,
		llm:      llm,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		fallback: NewTemplateGeneratorWithConfig(TemplateGeneratorConfig{MaxPerDocument: config.MaxPerDocument}),
	}, nil
}

const generatePrompt = `Generate up to %d question and answer pairs about the article below.
Respond with a JSON array of objects with fields "question", "answer" and
"type" ("fundamental" for definitional questions, "specific" for factual ones).

Title: %s

Article:
%s`

type modelPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Type     string `json:"type"`
}

// GenerateConversations asks the model for pairs, falling back to template
// generation when the model cannot be reached or returns garbage. A failed
// call never sinks the document.
func (g *OllamaGenerator) GenerateConversations(ctx context.Context, doc models.CategorizedDocument) ([]models.ConversationRecord, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := doc.NormalizedBody
	if len(body) > 2000 {
		body = body[:2000]
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman,
			fmt.Sprintf(generatePrompt, g.config.MaxPerDocument, doc.Title, body)),
	}

	response, err := g.llm.GenerateContent(ctx, content)
	if err != nil {
		return g.fallback.GenerateConversations(ctx, doc)
	}

	pairs := parseModelPairs(response)
	if len(pairs) == 0 {
		return g.fallback.GenerateConversations(ctx, doc)
	}

	now := time.Now().UTC()
	records := make([]models.ConversationRecord, 0, len(pairs))
	for _, p := range pairs {
		if len(records) >= g.config.MaxPerDocument {
			break
		}
		if p.Question == "" || p.Answer == "" {
			continue
		}
		kind := models.QuestionSpecific
		if p.Type == string(models.QuestionFundamental) {
			kind = models.QuestionFundamental
		}
		records = append(records, models.ConversationRecord{
			Question:     p.Question,
			Answer:       p.Answer,
			QuestionType: kind,
			QualityScore: doc.Confidence,
			SourceTitle:  doc.Title,
			Category:     doc.Category,
			Subcategory:  doc.Subcategory,
			GeneratedAt:  now,
		})
	}
	if len(records) == 0 {
		return g.fallback.GenerateConversations(ctx, doc)
	}
	return records, nil
}

func parseModelPairs(response *llms.ContentResponse) []modelPair {
	if response == nil || len(response.Choices) == 0 {
		return nil
	}
	text := response.Choices[0].Content

	// Models love wrapping JSON in prose; take the outermost array.
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil
	}

	var pairs []modelPair
	if err := sonic.Unmarshal([]byte(text[start:end+1]), &pairs); err != nil {
		return nil
	}
	return pairs
}
