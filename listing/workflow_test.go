package listing

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/flipsync/flipsync/core"
	"github.com/flipsync/flipsync/costs"
	"github.com/flipsync/flipsync/offers"
)

// stubVision returns a fixed result or error
type stubVision struct {
	result *VisionResult
	err    error
	calls  int
}

func (s *stubVision) AnalyzeImage(ctx context.Context, image []byte, kind, marketplace string, extra map[string]interface{}) (*VisionResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubResearch returns a fixed result or error
type stubResearch struct {
	result *ResearchResult
	err    error
}

func (s *stubResearch) Research(ctx context.Context, analysis *VisionResult, marketplace string) (*ResearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubContent echoes the base content with a fixed score
type stubContent struct {
	title string
	score float64
	cost  float64
	err   error
}

func (s *stubContent) Optimize(ctx context.Context, base Content, product ProductData, targetKeywords []string) (*OptimizedContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := &OptimizedContent{Content: base, CassiniScore: s.score, CostUSD: s.cost}
	if s.title != "" {
		out.Title = s.title
	}
	return out, nil
}

func cameraVision() *VisionResult {
	return &VisionResult{
		ProductData: ProductData{
			Title:     "Canon EOS R6 Mirrorless Camera Body",
			Brand:     "Canon",
			Condition: "Used",
			Features:  []string{"full frame sensor", "in-body stabilization"},
		},
		Confidence: 0.9,
		CostUSD:    0.02,
	}
}

func TestCreateListingRequiresInput(t *testing.T) {
	w := NewWorkflow()
	_, err := w.CreateListing(context.Background(), &CreationRequest{
		UserID: "u1", EnableWebResearch: false,
	})
	if !errors.Is(err, core.ErrInsufficientInput) {
		t.Errorf("error = %v, want insufficient input", err)
	}
}

func TestCreateListingHappyPath(t *testing.T) {
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithResearchService(&stubResearch{result: &ResearchResult{
			CompetitivePrices: []float64{95.00, 105.00, 100.00},
			Features:          []string{"mirrorless", "full frame"},
			Confidence:        0.8,
			SourcesUsed:       []string{"ebay_search"},
			CostUSD:           0.01,
		}}),
		WithContentOptimizer(&stubContent{score: 85}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:                []byte("jpeg"),
		Filename:                  "camera.jpg",
		UserID:                    "u1",
		Marketplace:               "ebay",
		ProfitVsSpeed:             0.5,
		EnableWebResearch:         true,
		EnableCassiniOptimization: true,
	})
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if listing.WorkflowID == "" {
		t.Error("missing workflow id")
	}
	if listing.Title != "Canon EOS R6 Mirrorless Camera Body" {
		t.Errorf("Title = %q", listing.Title)
	}
	// avg(95,105,100)*0.99 = 99.00
	if listing.SuggestedPrice != 99.00 {
		t.Errorf("SuggestedPrice = %v, want 99.00", listing.SuggestedPrice)
	}
	if listing.CategoryID != "293" {
		t.Errorf("CategoryID = %q, want consumer electronics", listing.CategoryID)
	}
	if listing.CassiniScore != 85 {
		t.Errorf("CassiniScore = %v", listing.CassiniScore)
	}
	if listing.ResearchConfidence != 0.8 {
		t.Errorf("ResearchConfidence = %v", listing.ResearchConfidence)
	}
	if math.Abs(listing.TotalCostUSD-0.03) > 1e-9 {
		t.Errorf("TotalCostUSD = %v, want vision + research costs", listing.TotalCostUSD)
	}
	if hit, _ := listing.Metadata["deadline_hit"].(bool); hit {
		t.Error("deadline_hit should be false")
	}
}

func TestPriceListingTable(t *testing.T) {
	tests := []struct {
		name        string
		comparables []float64
		pvs         float64
		costBasis   float64
		want        float64
	}{
		{"profit priced above average", []float64{100, 110, 90}, 0.9, 0, 105.00},  // avg 100 * 1.05
		{"speed priced below minimum", []float64{100, 110, 90}, 0.1, 0, 88.20},    // min 90 * 0.98
		{"balanced near average", []float64{100, 110, 90}, 0.5, 0, 99.00},         // avg 100 * 0.99
		{"cost basis profit markup", nil, 0.8, 40, 60.00},                         // 40 * 1.5
		{"cost basis speed markup", nil, 0.2, 40, 52.00},                          // 40 * 1.3
		{"no data default", nil, 0.5, 0, 50.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorkflow()
			r := &run{req: &CreationRequest{ProfitVsSpeed: tt.pvs, CostBasis: tt.costBasis}}
			if len(tt.comparables) > 0 {
				r.research = &ResearchResult{CompetitivePrices: tt.comparables}
			}
			w.priceListing(r)
			if r.price != tt.want {
				t.Errorf("price = %v, want %v", r.price, tt.want)
			}
		})
	}
}

func TestTitleTruncatedToLimit(t *testing.T) {
	longTitle := strings.Repeat("x", 81)
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: &VisionResult{
			ProductData: ProductData{Title: longTitle},
			Confidence:  0.9,
		}}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes: []byte("jpeg"),
		UserID:     "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Title) != maxTitleLength {
		t.Errorf("title length = %d, want %d", len(listing.Title), maxTitleLength)
	}
	if !strings.HasSuffix(listing.Title, "...") {
		t.Errorf("title %q should end with ellipsis", listing.Title)
	}
	found := false
	for _, imp := range listing.Improvements {
		if strings.Contains(imp, "truncated") {
			found = true
		}
	}
	if !found {
		t.Errorf("Improvements = %v, want truncation recorded", listing.Improvements)
	}
}

func TestVisionFailureFallsBackToFilename(t *testing.T) {
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{err: core.ErrTransport}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes: []byte("jpeg"),
		Filename:   "vintage_camera-body.jpg",
		UserID:     "u1",
	})
	if err != nil {
		t.Fatalf("vision failure must not abort the workflow: %v", err)
	}
	if listing.Title != "vintage camera body" {
		t.Errorf("Title = %q, want derived from filename", listing.Title)
	}
	if conf, _ := listing.Metadata["vision_confidence"].(float64); conf != 0.3 {
		t.Errorf("vision_confidence = %v, want fallback 0.3", conf)
	}
}

func TestResearchFailureFallsBack(t *testing.T) {
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithResearchService(&stubResearch{err: core.ErrRateLimit}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:        []byte("jpeg"),
		UserID:            "u1",
		CostBasis:         40,
		ProfitVsSpeed:     0.8,
		EnableWebResearch: true,
	})
	if err != nil {
		t.Fatalf("research failure must not abort the workflow: %v", err)
	}
	if listing.ResearchConfidence != 0.3 {
		t.Errorf("ResearchConfidence = %v, want fallback 0.3", listing.ResearchConfidence)
	}
	// Without comparables, pricing falls through to cost basis
	if listing.SuggestedPrice != 60.00 {
		t.Errorf("SuggestedPrice = %v, want cost basis markup", listing.SuggestedPrice)
	}
}

func TestResearchWithoutImage(t *testing.T) {
	w := NewWorkflow(
		WithResearchService(&stubResearch{result: &ResearchResult{
			CompetitivePrices: []float64{20, 30},
			Confidence:        0.65,
			SourcesUsed:       []string{"ebay_search"},
		}}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		Filename:          "record_player.jpg",
		UserID:            "u1",
		EnableWebResearch: true,
	})
	if err != nil {
		t.Fatalf("research-only workflow failed: %v", err)
	}
	if listing.Title != "record player" {
		t.Errorf("Title = %q, want from filename without image analysis", listing.Title)
	}
	if listing.ResearchConfidence != 0.65 {
		t.Errorf("ResearchConfidence = %v", listing.ResearchConfidence)
	}
}

func TestBestOfferConfigured(t *testing.T) {
	om := offers.NewManager()
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithOfferManager(om),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:      []byte("jpeg"),
		UserID:          "u1",
		ProfitVsSpeed:   0.7,
		MinProfitMargin: 0.2,
		EnableBestOffer: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if listing.BestOfferSettings == nil {
		t.Fatal("BestOfferSettings missing")
	}
	if listing.BestOfferSettings.ProfitVsSpeed != 0.7 {
		t.Errorf("ProfitVsSpeed = %v, want request value", listing.BestOfferSettings.ProfitVsSpeed)
	}
	stored := om.SettingsFor("u1")
	if stored.MinProfitMargin != 0.2 {
		t.Errorf("stored margin = %v, want persisted on the manager", stored.MinProfitMargin)
	}
}

func TestBestOfferInvalidInputsFallBackToDefaults(t *testing.T) {
	om := offers.NewManager()
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithOfferManager(om),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:      []byte("jpeg"),
		UserID:          "u1",
		ProfitVsSpeed:   1.7, // out of range
		EnableBestOffer: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if listing.BestOfferSettings == nil {
		t.Fatal("BestOfferSettings missing")
	}
	if listing.BestOfferSettings.ProfitVsSpeed != offers.BalancedDefaults().ProfitVsSpeed {
		t.Errorf("ProfitVsSpeed = %v, want balanced default after rejection", listing.BestOfferSettings.ProfitVsSpeed)
	}
}

func TestBestOfferDisabled(t *testing.T) {
	w := NewWorkflow(WithVisionAnalyzer(&stubVision{result: cameraVision()}))
	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes: []byte("jpeg"), UserID: "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if listing.BestOfferSettings != nil {
		t.Error("BestOfferSettings should be nil when disabled")
	}
}

func TestStageCostsForwardedToTracker(t *testing.T) {
	tracker := costs.NewTracker(costs.TrackerConfig{DailyLimitUSD: 10})
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithResearchService(&stubResearch{result: &ResearchResult{
			Confidence: 0.8, SourcesUsed: []string{"ebay_search"}, CostUSD: 0.01,
		}}),
		WithContentOptimizer(&stubContent{score: 70, cost: 0.005}),
		WithCostTracker(tracker),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:                []byte("jpeg"),
		UserID:                    "u1",
		EnableWebResearch:         true,
		EnableCassiniOptimization: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(listing.TotalCostUSD-0.035) > 1e-9 {
		t.Errorf("TotalCostUSD = %v, want all three stage costs", listing.TotalCostUSD)
	}
	stats := tracker.Stats()
	if stats.EntryCount != 3 {
		t.Errorf("tracker entries = %d, want one per costed stage", stats.EntryCount)
	}
	if stats.ByCategory[costs.CategoryVisionAnalysis].Count != 1 {
		t.Errorf("vision category = %+v", stats.ByCategory[costs.CategoryVisionAnalysis])
	}
	if stats.ByCategory[costs.CategoryMarketResearch].Count != 1 {
		t.Errorf("research category = %+v", stats.ByCategory[costs.CategoryMarketResearch])
	}
	if stats.ByCategory[costs.CategoryContentCreation].Count != 1 {
		t.Errorf("content category = %+v", stats.ByCategory[costs.CategoryContentCreation])
	}
}

func TestContentOptimizationFailureUsesBaseContent(t *testing.T) {
	w := NewWorkflow(
		WithVisionAnalyzer(&stubVision{result: cameraVision()}),
		WithContentOptimizer(&stubContent{err: core.ErrTimeout}),
	)

	listing, err := w.CreateListing(context.Background(), &CreationRequest{
		ImageBytes:                []byte("jpeg"),
		UserID:                    "u1",
		EnableCassiniOptimization: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if listing.Title != "Canon EOS R6 Mirrorless Camera Body" {
		t.Errorf("Title = %q, want base content retained", listing.Title)
	}
	if listing.CassiniScore != 0 {
		t.Errorf("CassiniScore = %v, want zero without optimization", listing.CassiniScore)
	}
}

func TestTitleFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"vintage_camera.jpg", "vintage camera"},
		{"/tmp/uploads/red-jacket.png", "red jacket"},
		{"", "Untitled Item"},
		{".jpg", "Untitled Item"},
	}
	for _, tt := range tests {
		if got := titleFromFilename(tt.filename); got != tt.want {
			t.Errorf("titleFromFilename(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}
