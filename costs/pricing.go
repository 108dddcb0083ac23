package costs

import (
	"strings"

	"github.com/shopspring/decimal"
)

// modelPricing is USD per 1K tokens, prompt and completion.
// Unknown models fall back to the gpt-4o-mini rates, which keeps
// estimates conservative for the cheap default tier.
type modelPricing struct {
	promptPer1K     decimal.Decimal
	completionPer1K decimal.Decimal
}

var pricingTable = map[string]modelPricing{
	"gpt-4o":                 {decimal.NewFromFloat(0.0025), decimal.NewFromFloat(0.01)},
	"gpt-4o-mini":            {decimal.NewFromFloat(0.00015), decimal.NewFromFloat(0.0006)},
	"gpt-4":                  {decimal.NewFromFloat(0.03), decimal.NewFromFloat(0.06)},
	"gpt-3.5-turbo":          {decimal.NewFromFloat(0.0005), decimal.NewFromFloat(0.0015)},
	"text-embedding-3-small": {decimal.NewFromFloat(0.00002), decimal.Zero},
	"text-embedding-3-large": {decimal.NewFromFloat(0.00013), decimal.Zero},
}

var defaultPricing = pricingTable["gpt-4o-mini"]

// EstimateCost estimates the USD cost of one call from token counts.
// Model identifiers are matched by prefix so dated snapshots
// (e.g. "gpt-4o-2024-08-06") resolve to their base pricing.
func EstimateCost(model string, promptTokens, completionTokens int) decimal.Decimal {
	pricing, ok := pricingTable[model]
	if !ok {
		// Longest prefix wins so "gpt-4o-..." resolves to gpt-4o, not gpt-4
		best := ""
		for name, p := range pricingTable {
			if strings.HasPrefix(model, name) && len(name) > len(best) {
				pricing, ok = p, true
				best = name
			}
		}
	}
	if !ok {
		pricing = defaultPricing
	}

	perK := decimal.NewFromInt(1000)
	prompt := pricing.promptPer1K.Mul(decimal.NewFromInt(int64(promptTokens))).Div(perK)
	completion := pricing.completionPer1K.Mul(decimal.NewFromInt(int64(completionTokens))).Div(perK)
	return prompt.Add(completion)
}
