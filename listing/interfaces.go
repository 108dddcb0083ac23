// Package listing implements the image-to-listing creation workflow and
// marketplace category optimization.
package listing

import (
	"context"
	"time"
)

// ProductData is what image analysis extracts from product photos
type ProductData struct {
	Title     string   `json:"title"`
	Brand     string   `json:"brand,omitempty"`
	Category  string   `json:"category,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Features  []string `json:"features,omitempty"`
}

// VisionResult is the outcome of one image analysis call
type VisionResult struct {
	ProductData ProductData            `json:"product_data"`
	Confidence  float64                `json:"confidence"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CostUSD     float64                `json:"cost_usd,omitempty"`
}

// VisionAnalyzer extracts product data from image bytes
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, kind, marketplace string, extra map[string]interface{}) (*VisionResult, error)
}

// ResearchResult is the outcome of product research
type ResearchResult struct {
	Specs             map[string]string `json:"specs,omitempty"`
	Features          []string          `json:"features,omitempty"`
	CompetitivePrices []float64         `json:"competitive_prices,omitempty"`
	MarketPosition    string            `json:"market_position,omitempty"`
	Confidence        float64           `json:"confidence"`
	SourcesUsed       []string          `json:"sources_used"`
	Timestamp         time.Time         `json:"timestamp"`
	CostUSD           float64           `json:"cost_usd,omitempty"`
}

// ResearchService enriches image analysis with market data. Web-sourced
// implementations must honor robots.txt and keep at least one second
// between requests to the same host.
type ResearchService interface {
	Research(ctx context.Context, analysis *VisionResult, marketplace string) (*ResearchResult, error)
}

// Content is listing copy before or after optimization
type Content struct {
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	ItemSpecifics map[string]string `json:"item_specifics,omitempty"`
}

// OptimizedContent is listing copy tuned for search placement
type OptimizedContent struct {
	Content
	CassiniScore float64  `json:"cassini_score"` // 0..100
	Improvements []string `json:"improvements,omitempty"`
	CostUSD      float64  `json:"cost_usd,omitempty"`
}

// ContentOptimizer rewrites listing copy around target keywords
type ContentOptimizer interface {
	Optimize(ctx context.Context, base Content, product ProductData, targetKeywords []string) (*OptimizedContent, error)
}
