package agents

import (
	"fmt"
	"strings"
)

// Intent is the classified purpose of a user message. The set is closed;
// each intent maps 1:1 onto a default target role.
type Intent string

const (
	IntentPricing     Intent = "pricing"
	IntentCompetition Intent = "competition"
	IntentListing     Intent = "listing"
	IntentSEO         Intent = "seo"
	IntentShipping    Intent = "shipping"
	IntentInventory   Intent = "inventory"
	IntentStrategy    Intent = "strategy"
	IntentDecision    Intent = "decision"
	IntentGeneral     Intent = "general"
)

// TargetRole returns the default agent role for an intent
func (i Intent) TargetRole() Role {
	switch i {
	case IntentPricing, IntentCompetition:
		return RoleMarket
	case IntentListing, IntentSEO:
		return RoleContent
	case IntentShipping, IntentInventory:
		return RoleLogistics
	case IntentStrategy, IntentDecision:
		return RoleExecutive
	default:
		return RoleLiaison
	}
}

// Result is the outcome of classifying one user message
type Result struct {
	Intent          Intent   `json:"intent"`
	Confidence      float64  `json:"confidence"`
	TargetRole      Role     `json:"target_role"`
	MatchedKeywords []string `json:"matched_keywords"`
	Rationale       string   `json:"rationale"`
}

// intentPattern is the keyword bag and boost for one intent
type intentPattern struct {
	intent   Intent
	keywords []string
	boost    float64
}

// Classification is deterministic: patterns are scored in declared order
// and ties break toward the earlier entry.
var intentPatterns = []intentPattern{
	{IntentPricing, []string{"price", "pricing", "priced", "cost", "worth", "value", "charge", "how much"}, 0.1},
	{IntentCompetition, []string{"competitor", "competition", "compare", "market share", "rival", "undercut"}, 0.1},
	{IntentListing, []string{"listing", "title", "description", "photos", "optimize my listing", "item specifics"}, 0.1},
	{IntentSEO, []string{"seo", "keyword", "search rank", "visibility", "cassini", "best match"}, 0.1},
	{IntentShipping, []string{"ship", "shipping", "postage", "delivery", "carrier", "tracking", "package"}, 0.1},
	{IntentInventory, []string{"inventory", "stock", "restock", "quantity", "sku", "warehouse"}, 0.1},
	{IntentStrategy, []string{"strategy", "plan", "growth", "scale", "expand", "long term"}, 0.1},
	{IntentDecision, []string{"should i", "decide", "decision", "recommend", "advice", "which one"}, 0.05},
}

// minIntentScore is the floor below which classification falls back to the
// general intent
const minIntentScore = 0.1

// Recognizer classifies user messages into intents. It is a pure function
// of its inputs and the static keyword table; safe for concurrent use.
type Recognizer struct{}

// NewRecognizer creates an intent recognizer
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// Classify maps a user message to an intent, target role and confidence.
// Any internal failure returns the safe general fallback.
func (r *Recognizer) Classify(message string, context map[string]interface{}) Result {
	result, err := r.classify(message)
	if err != nil {
		fallback := generalFallback()
		fallback.Rationale = fmt.Sprintf("classification error: %v", err)
		return fallback
	}
	return result
}

func (r *Recognizer) classify(message string) (Result, error) {
	normalized := strings.ToLower(message)

	best := Result{Confidence: -1}
	for _, pattern := range intentPatterns {
		var matches []string
		for _, keyword := range pattern.keywords {
			if strings.Contains(normalized, keyword) {
				matches = append(matches, strings.TrimSpace(keyword))
			}
		}
		if len(matches) == 0 {
			continue
		}
		score := float64(len(matches))/float64(len(pattern.keywords)) + pattern.boost
		if score > best.Confidence {
			best = Result{
				Intent:          pattern.intent,
				Confidence:      score,
				TargetRole:      pattern.intent.TargetRole(),
				MatchedKeywords: matches,
				Rationale:       fmt.Sprintf("matched %d/%d %s keywords", len(matches), len(pattern.keywords), pattern.intent),
			}
		}
	}

	if best.Confidence < minIntentScore {
		return generalFallback(), nil
	}
	if best.Confidence > 1.0 {
		best.Confidence = 1.0
	}
	return best, nil
}

func generalFallback() Result {
	return Result{
		Intent:          IntentGeneral,
		Confidence:      0.5,
		TargetRole:      RoleLiaison,
		MatchedKeywords: []string{},
		Rationale:       "no specific intent detected",
	}
}
