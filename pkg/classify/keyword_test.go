package classify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/distill/pkg/classify"
)

func TestClassifyScienceDocument(t *testing.T) {
	c := classify.NewKeywordClassifier()
	body := "Quantum physics describes energy at the smallest scales. " +
		"The theory was confirmed by experiment after experiment, and every " +
		"physics department keeps testing it."

	result := c.Classify("Quantum mechanics", body)

	assert.Equal(t, "science", result.Category)
	assert.Equal(t, "physics", result.Subcategory)
	assert.Greater(t, result.Confidence, 0.3)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestClassifyGeographyDocument(t *testing.T) {
	c := classify.NewKeywordClassifier()
	body := "The river rises in the mountain range and flows through the " +
		"region before reaching the capital city. Its population lives " +
		"mostly along the river."

	result := c.Classify("Danube", body)

	assert.Equal(t, "geography", result.Category)
}

func TestClassifyFallsBackToDefault(t *testing.T) {
	c := classify.NewKeywordClassifier()

	result := c.Classify("Zxqw", "lorem ipsum dolor sit amet with nothing recognizable")

	assert.Equal(t, classify.DefaultCategory, result.Category)
	assert.Equal(t, classify.DefaultCategory, result.Subcategory)
	assert.InDelta(t, 0.3, result.Confidence, 0.001)
}

func TestConfidenceCappedAtOne(t *testing.T) {
	c := classify.NewKeywordClassifier()
	body := strings.Repeat("physics chemistry biology quantum theory experiment ", 50)

	result := c.Classify("Science", body)

	assert.Equal(t, 1.0, result.Confidence)
}

func TestCategoriesStableAndClosed(t *testing.T) {
	c := classify.NewKeywordClassifier()
	categories := c.Categories()

	assert.Contains(t, categories, classify.DefaultCategory)
	assert.Contains(t, categories, "science")
	assert.Contains(t, categories, "history")
	assert.Equal(t, categories, c.Categories())
	assert.True(t, sortedStrings(categories))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] {
			return false
		}
	}
	return true
}

func TestClassifyEveryResultInCategorySet(t *testing.T) {
	c := classify.NewKeywordClassifier()
	set := make(map[string]bool)
	for _, name := range c.Categories() {
		set[name] = true
	}

	bodies := []string{
		"the war between the two empires lasted a century",
		"the album reached number one and the band toured museums",
		"software running on a computer network",
		"born in 1920, died in 1999, known for a long career",
		"nothing to see here",
	}
	for _, body := range bodies {
		result := c.Classify("X", body)
		assert.True(t, set[result.Category], "category %q not in fixed set", result.Category)
	}
}
