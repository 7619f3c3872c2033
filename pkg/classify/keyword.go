package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/xhad/distill/internal/models"
)

// DefaultCategory receives documents no keyword rule claims.
const DefaultCategory = "general"

// scoreDivisor normalizes the accumulated keyword weight into [0,1].
const scoreDivisor = 20.0

type categoryRule struct {
	keywords      map[string]float64
	subcategories []subcategoryRule
}

type subcategoryRule struct {
	name    string
	pattern *regexp.Regexp
}

// KeywordClassifier scores documents against a fixed keyword taxonomy.
// Title hits count double. Safe for concurrent use once built.
type KeywordClassifier struct {
	rules      map[string]categoryRule
	categories []string
}

func NewKeywordClassifier() *KeywordClassifier {
	rules := map[string]categoryRule{
		"science": {
			keywords: map[string]float64{
				"physics": 3, "chemistry": 3, "biology": 3, "theory": 2,
				"experiment": 2, "scientist": 2, "research": 1.5, "species": 2,
				"molecule": 2.5, "cell": 1.5, "energy": 1.5, "quantum": 3,
				"mathematics": 3, "theorem": 2.5, "equation": 2,
			},
			subcategories: []subcategoryRule{
				{"physics", regexp.MustCompile(`\b(physics|quantum|particle|relativity)\b`)},
				{"biology", regexp.MustCompile(`\b(biology|species|organism|cell|gene)\b`)},
				{"chemistry", regexp.MustCompile(`\b(chemistry|chemical|molecule|compound)\b`)},
				{"mathematics", regexp.MustCompile(`\b(mathematics|theorem|algebra|geometry)\b`)},
			},
		},
		"history": {
			keywords: map[string]float64{
				"war": 2, "empire": 2.5, "century": 1.5, "ancient": 2.5,
				"revolution": 2, "dynasty": 2.5, "battle": 2, "kingdom": 2,
				"medieval": 2.5, "treaty": 2, "founded": 1.5, "historical": 2,
			},
			subcategories: []subcategoryRule{
				{"military", regexp.MustCompile(`\b(war|battle|army|military|siege)\b`)},
				{"ancient", regexp.MustCompile(`\b(ancient|roman|greek|egypt|antiquity)\b`)},
				{"modern", regexp.MustCompile(`\b(revolution|industrial|twentieth|cold war)\b`)},
			},
		},
		"geography": {
			keywords: map[string]float64{
				"river": 2.5, "mountain": 2.5, "city": 1.5, "country": 1.5,
				"region": 1.5, "island": 2.5, "capital": 2, "population": 1.5,
				"climate": 2, "province": 2, "located": 1.5, "border": 2,
			},
			subcategories: []subcategoryRule{
				{"physical", regexp.MustCompile(`\b(river|mountain|lake|island|valley)\b`)},
				{"political", regexp.MustCompile(`\b(country|capital|province|state|border)\b`)},
				{"urban", regexp.MustCompile(`\b(city|metropolitan|municipality|town)\b`)},
			},
		},
		"culture": {
			keywords: map[string]float64{
				"music": 2.5, "art": 2, "film": 2.5, "literature": 2.5,
				"novel": 2, "painting": 2.5, "album": 2, "festival": 2,
				"tradition": 2, "language": 1.5, "religion": 2, "museum": 2,
			},
			subcategories: []subcategoryRule{
				{"music", regexp.MustCompile(`\b(music|album|song|band|composer)\b`)},
				{"visual-arts", regexp.MustCompile(`\b(painting|sculpture|museum|artist)\b`)},
				{"literature", regexp.MustCompile(`\b(novel|poem|literature|writer|poet)\b`)},
				{"film", regexp.MustCompile(`\b(film|movie|cinema|director|actor)\b`)},
			},
		},
		"technology": {
			keywords: map[string]float64{
				"computer": 2.5, "software": 2.5, "internet": 2.5, "engine": 2,
				"machine": 1.5, "digital": 2, "network": 2, "hardware": 2.5,
				"invention": 2, "algorithm": 2.5, "device": 1.5, "electronic": 2,
			},
			subcategories: []subcategoryRule{
				{"computing", regexp.MustCompile(`\b(computer|software|algorithm|programming)\b`)},
				{"engineering", regexp.MustCompile(`\b(engine|machine|mechanical|construction)\b`)},
				{"communications", regexp.MustCompile(`\b(internet|network|telephone|broadcast)\b`)},
			},
		},
		"sports": {
			keywords: map[string]float64{
				"football": 3, "championship": 2.5, "team": 1.5, "player": 2,
				"league": 2.5, "olympic": 3, "tournament": 2.5, "season": 1.5,
				"match": 2, "stadium": 2.5, "coach": 2, "athlete": 2.5,
			},
			subcategories: []subcategoryRule{
				{"football", regexp.MustCompile(`\b(football|soccer|goal|fifa)\b`)},
				{"olympics", regexp.MustCompile(`\b(olympic|medal|games)\b`)},
				{"team-sports", regexp.MustCompile(`\b(basketball|baseball|hockey|rugby|volleyball)\b`)},
			},
		},
		"biography": {
			keywords: map[string]float64{
				"born": 2.5, "died": 2.5, "career": 2, "life": 1.5,
				"childhood": 2.5, "graduated": 2, "married": 2, "biography": 3,
				"awarded": 2, "known for": 2.5,
			},
			subcategories: []subcategoryRule{
				{"politician", regexp.MustCompile(`\b(president|minister|senator|governor|elected)\b`)},
				{"artist", regexp.MustCompile(`\b(painter|musician|actor|writer|singer)\b`)},
				{"scientist", regexp.MustCompile(`\b(physicist|chemist|biologist|mathematician|inventor)\b`)},
			},
		},
		"politics": {
			keywords: map[string]float64{
				"government": 2.5, "election": 2.5, "parliament": 2.5, "party": 2,
				"president": 2, "minister": 2, "policy": 2, "constitution": 2.5,
				"vote": 2, "senate": 2.5, "democracy": 2.5, "law": 1.5,
			},
			subcategories: []subcategoryRule{
				{"elections", regexp.MustCompile(`\b(election|vote|ballot|campaign)\b`)},
				{"institutions", regexp.MustCompile(`\b(parliament|senate|congress|constitution)\b`)},
				{"international", regexp.MustCompile(`\b(treaty|united nations|diplomacy|foreign)\b`)},
			},
		},
	}

	names := make([]string, 0, len(rules)+1)
	for name := range rules {
		names = append(names, name)
	}
	names = append(names, DefaultCategory)
	sort.Strings(names)

	return &KeywordClassifier{rules: rules, categories: names}
}

// Categories returns every category the classifier can emit, default
// included, in stable order. The writer creates its directories from this.
func (k *KeywordClassifier) Categories() []string {
	out := make([]string, len(k.categories))
	copy(out, k.categories)
	return out
}

// Classify scores title and body against every category's keyword table and
// picks the highest. Documents scoring zero everywhere fall back to the
// default category at fixed low confidence.
func (k *KeywordClassifier) Classify(title, normalizedBody string) models.Classification {
	lowerTitle := strings.ToLower(title)
	lowerBody := strings.ToLower(normalizedBody)

	bestName := ""
	bestScore := 0.0
	for name, rule := range k.rules {
		score := 0.0
		for keyword, weight := range rule.keywords {
			if strings.Contains(lowerTitle, keyword) {
				score += weight * 2
			}
			score += weight * float64(strings.Count(lowerBody, keyword))
		}
		if score > bestScore || (score == bestScore && score > 0 && name < bestName) {
			bestName = name
			bestScore = score
		}
	}

	if bestScore == 0 {
		return models.Classification{
			Category:    DefaultCategory,
			Subcategory: DefaultCategory,
			Confidence:  0.3,
		}
	}

	confidence := bestScore / scoreDivisor
	if confidence > 1 {
		confidence = 1
	}

	sub := bestName
	for _, sc := range k.rules[bestName].subcategories {
		if sc.pattern.MatchString(lowerBody) || sc.pattern.MatchString(lowerTitle) {
			sub = sc.name
			break
		}
	}

	return models.Classification{Category: bestName, Subcategory: sub, Confidence: confidence}
}
