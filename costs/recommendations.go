package costs

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Recommendation is one cost-optimization suggestion derived from aggregates
type Recommendation struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Priority    string `json:"priority"` // "high", "medium", "low"
}

// Recommendations derives cost-optimization suggestions from the current
// snapshot: budget pressure, expensive model concentration, and heavy
// conversational spend that caching would absorb.
func (t *Tracker) Recommendations() []Recommendation {
	stats := t.Stats()
	var recs []Recommendation

	if stats.DailyLimitUSD.IsPositive() {
		ratio, _ := stats.SpentDay.Div(stats.DailyLimitUSD).Float64()
		if ratio >= 1.0 {
			recs = append(recs, Recommendation{
				Kind:        "budget_exhausted",
				Description: "daily budget exhausted; defer non-critical LLM calls until the window resets",
				Priority:    "high",
			})
		} else if ratio >= 0.8 {
			recs = append(recs, Recommendation{
				Kind:        "budget_pressure",
				Description: fmt.Sprintf("daily spend at %.0f%% of budget; prefer cached responses and cheaper models", ratio*100),
				Priority:    "medium",
			})
		}
	}

	// Expensive model concentration: any premium model carrying more than
	// half of total spend suggests a downgrade candidate.
	total := decimal.Zero
	for _, agg := range stats.ByModel {
		total = total.Add(agg.CostUSD)
	}
	if total.IsPositive() {
		for model, agg := range stats.ByModel {
			share, _ := agg.CostUSD.Div(total).Float64()
			if share > 0.5 && isPremiumModel(model) {
				recs = append(recs, Recommendation{
					Kind:        "model_downgrade",
					Description: fmt.Sprintf("model %s accounts for %.0f%% of spend; evaluate a cheaper tier for routine calls", model, share*100),
					Priority:    "medium",
				})
			}
		}
	}

	if conv, ok := stats.ByCategory[CategoryConversation]; ok && conv.Count >= 100 {
		recs = append(recs, Recommendation{
			Kind:        "enable_caching",
			Description: fmt.Sprintf("%d conversational calls recorded; response caching would absorb repeated prompts", conv.Count),
			Priority:    "low",
		})
	}

	return recs
}

func isPremiumModel(model string) bool {
	switch model {
	case "gpt-4", "gpt-4o":
		return true
	}
	return false
}
