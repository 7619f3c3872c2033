// Package classify turns raw dump pages into cleaned, categorized documents
// and generates conversational records from them.
package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/xhad/distill/internal/models"
)

// Markup stripping happens in a fixed order: templates and refs first so
// their inner text never leaks, then remaining tags, then link targets.
var (
	templateRe   = regexp.MustCompile(`\{\{[^}]*\}\}`)
	refRe        = regexp.MustCompile(`(?s)<ref[^>]*>.*?</ref>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	linkRe       = regexp.MustCompile(`\[\[(?:[^|\]]*\|)?([^\]]*)\]\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Pages under these namespaces carry meta content, not articles.
var skipNamespaces = []string{
	"Wikipedia:", "File:", "Template:", "Category:", "Help:",
	"Portal:", "Draft:", "MediaWiki:", "Module:", "Talk:",
}

// CleanerConfig sets the admission thresholds. Zero fields take the
// defaults used across the pipeline.
type CleanerConfig struct {
	MinRawLength     int
	MinCleanedLength int
	LanguageSample   int
	LanguagePattern  string
	LanguageRatio    float64
}

// Cleaner strips markup and filters pages that are too short, off-language
// or outside the article namespace. Safe for concurrent use.
type Cleaner struct {
	config     CleanerConfig
	languageRe *regexp.Regexp
}

func NewCleaner() *Cleaner {
	return NewCleanerWithConfig(CleanerConfig{})
}

func NewCleanerWithConfig(cfg CleanerConfig) *Cleaner {
	if cfg.MinRawLength == 0 {
		cfg.MinRawLength = 200
	}
	if cfg.MinCleanedLength == 0 {
		cfg.MinCleanedLength = 100
	}
	if cfg.LanguageSample == 0 {
		cfg.LanguageSample = 400
	}
	if cfg.LanguagePattern == "" {
		cfg.LanguagePattern = `[a-záéíóúñüç]`
	}
	if cfg.LanguageRatio == 0 {
		cfg.LanguageRatio = 0.25
	}
	return &Cleaner{
		config:     cfg,
		languageRe: regexp.MustCompile(cfg.LanguagePattern),
	}
}

// AcceptsStructurally applies the cheap pre-parse filters: raw length and
// namespace. Extraction workers call this to shed junk before any regex
// work happens downstream.
func (c *Cleaner) AcceptsStructurally(raw models.RawDocument) bool {
	if len(raw.Body) < c.config.MinRawLength {
		return false
	}
	for _, ns := range skipNamespaces {
		if strings.HasPrefix(raw.Title, ns) {
			return false
		}
	}
	return true
}

// Clean normalizes one page. The second return value reports whether the
// page passed the filters; rejected pages return a zero document.
func (c *Cleaner) Clean(raw models.RawDocument) (models.CleanedDocument, bool) {
	if !c.AcceptsStructurally(raw) {
		return models.CleanedDocument{}, false
	}
	if !c.looksOnLanguage(raw.Body) {
		return models.CleanedDocument{}, false
	}

	text := templateRe.ReplaceAllString(raw.Body, " ")
	text = refRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = linkRe.ReplaceAllString(text, "$1")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if len(text) < c.config.MinCleanedLength {
		return models.CleanedDocument{}, false
	}

	return models.CleanedDocument{
		RawDocument:    raw,
		NormalizedBody: text,
		ContentHash:    ContentHash(raw.Title, text),
		Length:         len(text),
	}, true
}

// looksOnLanguage samples a prefix of the body and checks the share of
// characters matching the language alphabet. Cheap rejection of pages in
// other scripts before any regex-heavy cleanup runs.
func (c *Cleaner) looksOnLanguage(body string) bool {
	sample := strings.ToLower(body)
	if len(sample) > c.config.LanguageSample {
		sample = sample[:c.config.LanguageSample]
	}
	if len(sample) == 0 {
		return false
	}
	matches := c.languageRe.FindAllString(sample, -1)
	return float64(len(matches))/float64(len(sample)) >= c.config.LanguageRatio
}

// ContentHash derives a short stable identifier from the title and the
// leading slice of the cleaned body.
func ContentHash(title, cleaned string) string {
	prefix := cleaned
	if len(prefix) > 30 {
		prefix = prefix[:30]
	}
	sum := sha256.Sum256([]byte(title + prefix))
	return hex.EncodeToString(sum[:])[:8]
}
