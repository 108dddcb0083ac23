package listing

import (
	"math"
	"sort"
	"strings"
)

// Category is one marketplace category
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoryRecommendation is the outcome of category optimization
type CategoryRecommendation struct {
	PrimaryCategory Category   `json:"primary_category"`
	Alternatives    []Category `json:"alternatives,omitempty"`
	Confidence      float64    `json:"confidence"`
	Reasoning       string     `json:"reasoning"`
}

// categoryCandidate pairs a category with its matching keywords
type categoryCandidate struct {
	category Category
	key      string
	keywords []string
}

// candidateCategories is the static marketplace category catalog
var candidateCategories = []categoryCandidate{
	{Category{"293", "Consumer Electronics"}, "electronics",
		[]string{"electronic", "camera", "phone", "laptop", "tablet", "headphone", "speaker", "console", "charger"}},
	{Category{"11450", "Clothing, Shoes & Accessories"}, "clothing",
		[]string{"shirt", "jacket", "dress", "shoe", "sneaker", "boot", "jeans", "coat", "hat"}},
	{Category{"11700", "Home & Garden"}, "home",
		[]string{"kitchen", "furniture", "decor", "garden", "lamp", "rug", "cookware", "appliance"}},
	{Category{"888", "Sporting Goods"}, "sporting",
		[]string{"bike", "golf", "fitness", "ski", "fishing", "camping", "exercise", "ball"}},
	{Category{"220", "Toys & Hobbies"}, "toys",
		[]string{"toy", "lego", "doll", "puzzle", "game", "action figure", "model kit"}},
	{Category{"267", "Books & Magazines"}, "books",
		[]string{"book", "novel", "magazine", "textbook", "comic", "hardcover", "paperback"}},
	{Category{"281", "Jewelry & Watches"}, "jewelry",
		[]string{"ring", "necklace", "bracelet", "watch", "earring", "pendant", "gemstone"}},
	{Category{"6000", "eBay Motors Parts"}, "automotive",
		[]string{"car", "engine", "brake", "tire", "bumper", "headlight", "motorcycle"}},
}

const (
	categoryBaseScore     = 0.5
	categorySignalBonus   = 0.3
	categoryKeywordBonus  = 0.05
	categoryKeywordBonMax = 0.2
)

// CategoryOptimizer scores candidate categories against product data. It
// is stateless and safe for concurrent use.
type CategoryOptimizer struct{}

// NewCategoryOptimizer creates a category optimizer
func NewCategoryOptimizer() *CategoryOptimizer {
	return &CategoryOptimizer{}
}

// OptimizeCategory picks the best-fitting category for a product. The
// current category and attribute values contribute matching signals.
func (c *CategoryOptimizer) OptimizeCategory(productName, currentCategory string, attributes map[string]string) CategoryRecommendation {
	corpus := strings.ToLower(productName)
	for _, v := range attributes {
		corpus += " " + strings.ToLower(v)
	}
	signal := strings.ToLower(currentCategory)
	if cat, ok := attributes["category"]; ok {
		signal += " " + strings.ToLower(cat)
	}

	type scored struct {
		candidate categoryCandidate
		score     float64
	}
	results := make([]scored, 0, len(candidateCategories))
	for _, candidate := range candidateCategories {
		score := categoryBaseScore
		if signal != "" && strings.Contains(signal, candidate.key) {
			score += categorySignalBonus
		}
		keywordBonus := 0.0
		for _, kw := range candidate.keywords {
			if strings.Contains(corpus, kw) {
				keywordBonus += categoryKeywordBonus
			}
		}
		score += math.Min(keywordBonus, categoryKeywordBonMax)
		results = append(results, scored{candidate, score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	primary := results[0]
	secondary := results[1]
	confidence := math.Min(0.95, primary.score+(primary.score-secondary.score)*0.5)

	alternatives := make([]Category, 0, 2)
	for _, r := range results[1:] {
		if len(alternatives) == 2 {
			break
		}
		if r.score > categoryBaseScore {
			alternatives = append(alternatives, r.candidate.category)
		}
	}

	return CategoryRecommendation{
		PrimaryCategory: primary.candidate.category,
		Alternatives:    alternatives,
		Confidence:      confidence,
		Reasoning: strings.TrimSpace(
			"best keyword and signal fit: " + primary.candidate.category.Name),
	}
}

// QualityInput is the listing content scored by QualityScore
type QualityInput struct {
	Title        string
	Description  string
	PhotoCount   int
	Keywords     []string
	FreeShipping bool
	FastHandling bool
}

// QualityScore rates listing content in [0,1]. Title length is optimal
// between 40 and 80 characters; five photos and five keywords earn full
// credit for their portions.
func QualityScore(in QualityInput) float64 {
	score := 0.0

	titleLen := len(in.Title)
	switch {
	case titleLen >= 40 && titleLen <= 80:
		score += 0.25
	case titleLen >= 20:
		score += 0.15
	case titleLen > 0:
		score += 0.05
	}

	descLen := len(in.Description)
	switch {
	case descLen >= 200:
		score += 0.25
	case descLen >= 50:
		score += 0.15
	case descLen > 0:
		score += 0.05
	}

	photos := float64(in.PhotoCount)
	if photos > 5 {
		photos = 5
	}
	score += 0.2 * (photos / 5)

	keywords := float64(len(in.Keywords))
	if keywords > 5 {
		keywords = 5
	}
	score += 0.2 * (keywords / 5)

	if in.FreeShipping {
		score += 0.05
	}
	if in.FastHandling {
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	return score
}
