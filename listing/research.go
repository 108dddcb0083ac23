package listing

import (
	"context"
	"strings"
	"time"

	"github.com/flipsync/flipsync/core"
)

// MarketplaceResearch implements ResearchService over a marketplace
// client: competitive prices come from a product search on the analyzed
// title. Requests are spaced through a per-host limiter.
type MarketplaceResearch struct {
	client  core.MarketplaceClient
	limiter *HostLimiter
	logger  core.Logger

	searchLimit int
}

// NewMarketplaceResearch creates a research service over a marketplace
// client
func NewMarketplaceResearch(client core.MarketplaceClient, logger core.Logger) *MarketplaceResearch {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MarketplaceResearch{
		client:      client,
		limiter:     NewHostLimiter(1),
		logger:      logger,
		searchLimit: 10,
	}
}

// Research looks up comparable listings for the analyzed product
func (r *MarketplaceResearch) Research(ctx context.Context, analysis *VisionResult, marketplace string) (*ResearchResult, error) {
	query := analysis.ProductData.Title
	if analysis.ProductData.Brand != "" && !strings.Contains(strings.ToLower(query), strings.ToLower(analysis.ProductData.Brand)) {
		query = analysis.ProductData.Brand + " " + query
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.NewFlipError("research.search", core.ErrValidation, "", "no product title to research")
	}

	if err := r.limiter.Wait(ctx, marketplace); err != nil {
		return nil, err
	}

	listings, err := r.client.SearchProducts(ctx, query, r.searchLimit)
	if err != nil {
		return nil, err
	}

	prices := make([]float64, 0, len(listings))
	for _, l := range listings {
		if l.Price > 0 {
			prices = append(prices, l.Price)
		}
	}

	confidence := 0.5
	if len(prices) >= 3 {
		confidence = 0.8
	} else if len(prices) > 0 {
		confidence = 0.65
	}

	r.logger.Debug("Market research completed", map[string]interface{}{
		"operation":   "market_research",
		"query":       query,
		"comparables": len(prices),
	})

	return &ResearchResult{
		Features:          analysis.ProductData.Features,
		CompetitivePrices: prices,
		MarketPosition:    marketPosition(prices),
		Confidence:        confidence,
		SourcesUsed:       []string{marketplace + "_search"},
		Timestamp:         time.Now(),
	}, nil
}

func marketPosition(prices []float64) string {
	switch {
	case len(prices) == 0:
		return "unknown"
	case len(prices) < 5:
		return "thin_market"
	default:
		return "competitive"
	}
}
