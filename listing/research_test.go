package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/flipsync/flipsync/core"
)

// fakeMarketplace scripts SearchProducts; the other reads are unused here
type fakeMarketplace struct {
	listings []core.MarketListing
	err      error
	queries  []string
}

func (f *fakeMarketplace) SearchProducts(ctx context.Context, query string, limit int) ([]core.MarketListing, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.listings, nil
}

func (f *fakeMarketplace) GetInventory(ctx context.Context, sku string) (*core.InventoryStatus, error) {
	return nil, core.ErrNotFound
}

func (f *fakeMarketplace) GetSalesMetrics(ctx context.Context, itemID string, days int) (*core.SalesMetrics, error) {
	return nil, core.ErrNotFound
}

func visionFor(title, brand string) *VisionResult {
	return &VisionResult{ProductData: ProductData{Title: title, Brand: brand}}
}

func TestResearchConfidenceScales(t *testing.T) {
	tests := []struct {
		name         string
		listings     []core.MarketListing
		wantConf     float64
		wantPosition string
	}{
		{"no results", nil, 0.5, "unknown"},
		{"one comparable", []core.MarketListing{{Price: 20}}, 0.65, "thin_market"},
		{"three comparables", []core.MarketListing{{Price: 20}, {Price: 25}, {Price: 22}}, 0.8, "thin_market"},
		{"deep market", []core.MarketListing{
			{Price: 20}, {Price: 25}, {Price: 22}, {Price: 19}, {Price: 24},
		}, 0.8, "competitive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMarketplaceResearch(&fakeMarketplace{listings: tt.listings}, nil)
			result, err := svc.Research(context.Background(), visionFor("film camera", ""), "ebay")
			if err != nil {
				t.Fatalf("Research: %v", err)
			}
			if result.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", result.Confidence, tt.wantConf)
			}
			if result.MarketPosition != tt.wantPosition {
				t.Errorf("MarketPosition = %q, want %q", result.MarketPosition, tt.wantPosition)
			}
			if len(result.SourcesUsed) != 1 || result.SourcesUsed[0] != "ebay_search" {
				t.Errorf("SourcesUsed = %v", result.SourcesUsed)
			}
		})
	}
}

func TestResearchPrependsBrandToQuery(t *testing.T) {
	fake := &fakeMarketplace{}
	svc := NewMarketplaceResearch(fake, nil)

	if _, err := svc.Research(context.Background(), visionFor("EOS R6 Body", "Canon"), "ebay"); err != nil {
		t.Fatal(err)
	}
	if len(fake.queries) != 1 || fake.queries[0] != "Canon EOS R6 Body" {
		t.Errorf("query = %v, want brand prefixed", fake.queries)
	}

	// Brand already in the title is not duplicated. A different host keeps
	// the per-host limiter from pacing the test.
	if _, err := svc.Research(context.Background(), visionFor("Canon EOS R6 Body", "Canon"), "mercari"); err != nil {
		t.Fatal(err)
	}
	if fake.queries[1] != "Canon EOS R6 Body" {
		t.Errorf("query = %q, want unchanged", fake.queries[1])
	}
}

func TestResearchRejectsEmptyTitle(t *testing.T) {
	svc := NewMarketplaceResearch(&fakeMarketplace{}, nil)
	_, err := svc.Research(context.Background(), visionFor("", ""), "ebay")
	if !errors.Is(err, core.ErrValidation) {
		t.Errorf("error = %v, want validation", err)
	}
}

func TestResearchPropagatesSearchError(t *testing.T) {
	svc := NewMarketplaceResearch(&fakeMarketplace{err: core.ErrRateLimit}, nil)
	_, err := svc.Research(context.Background(), visionFor("camera", ""), "ebay")
	if !errors.Is(err, core.ErrRateLimit) {
		t.Errorf("error = %v, want rate limit surfaced", err)
	}
}

func TestResearchSkipsZeroPricedListings(t *testing.T) {
	svc := NewMarketplaceResearch(&fakeMarketplace{listings: []core.MarketListing{
		{Price: 0}, {Price: 15.50}, {Price: 0},
	}}, nil)
	result, err := svc.Research(context.Background(), visionFor("camera", ""), "ebay")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.CompetitivePrices) != 1 || result.CompetitivePrices[0] != 15.50 {
		t.Errorf("CompetitivePrices = %v, want zero-priced results dropped", result.CompetitivePrices)
	}
}
