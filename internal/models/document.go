package models

import "time"

// RawDocument is a title/body pair as pulled from the dump. It only ever
// lives inside a queue slot or a worker's local scope.
type RawDocument struct {
	Title string
	Body  string
}

// CleanedDocument is a RawDocument after markup stripping and filtering.
type CleanedDocument struct {
	RawDocument
	NormalizedBody string
	ContentHash    string
	Length         int
}

// CategorizedDocument carries the classification attached by the generate stage.
type CategorizedDocument struct {
	CleanedDocument
	Category    string
	Subcategory string
	Confidence  float64
}

// QuestionType distinguishes broad definitional questions from ones that
// target a concrete fact of the article.
type QuestionType string

const (
	QuestionFundamental QuestionType = "fundamental"
	QuestionSpecific    QuestionType = "specific"
)

// ConversationRecord is one question/answer training pair. Records are the
// only entities that cross into durable storage.
type ConversationRecord struct {
	Question     string       `json:"question"`
	Answer       string       `json:"answer"`
	QuestionType QuestionType `json:"question_type"`
	QualityScore float64      `json:"quality_score"`
	SourceTitle  string       `json:"source_title"`
	Category     string       `json:"category"`
	Subcategory  string       `json:"subcategory"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// Classification is the result returned by the classification collaborator.
type Classification struct {
	Category    string
	Subcategory string
	Confidence  float64
}
