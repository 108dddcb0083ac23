package listing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flipsync/flipsync/core"
	"github.com/flipsync/flipsync/costs"
	"github.com/flipsync/flipsync/offers"
)

// maxTitleLength is the marketplace title limit
const maxTitleLength = 80

// defaultStageTimeout bounds each workflow stage
const defaultStageTimeout = 30 * time.Second

// CreationRequest is the input for one image-to-listing workflow
type CreationRequest struct {
	ImageBytes []byte
	Filename   string
	UserID     string
	Marketplace string

	ProfitVsSpeed   float64 // 0 = sell fast, 1 = maximize profit
	MinProfitMargin float64
	CostBasis       float64 // 0 when unknown
	TargetCategory  string

	EnableBestOffer           bool
	EnableCassiniOptimization bool
	EnableWebResearch         bool

	// Deadline, when positive, bounds the whole workflow; stages cut off
	// by it are skipped and the listing compiles from partial results
	Deadline time.Duration
}

// OptimizedListing is the compiled workflow result
type OptimizedListing struct {
	WorkflowID         string                 `json:"workflow_id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description"`
	CategoryID         string                 `json:"category_id"`
	ItemSpecifics      map[string]string      `json:"item_specifics,omitempty"`
	SuggestedPrice     float64                `json:"suggested_price"`
	BestOfferSettings  *offers.Settings       `json:"best_offer_settings,omitempty"`
	CassiniScore       float64                `json:"cassini_score"`
	ResearchConfidence float64                `json:"research_confidence"`
	Improvements       []string               `json:"improvements,omitempty"`
	ProcessingTime     time.Duration          `json:"processing_time"`
	TotalCostUSD       float64                `json:"total_cost_usd"`
	SourcesUsed        []string               `json:"sources_used,omitempty"`
	QualityScore       float64                `json:"quality_score"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
}

// Workflow runs the staged image-to-listing pipeline. Each stage is
// best-effort: a failure downgrades confidence and leaves a note, it does
// not abort the stages after it.
type Workflow struct {
	vision     VisionAnalyzer
	research   ResearchService
	content    ContentOptimizer
	categories *CategoryOptimizer
	offers     *offers.Manager
	costs      *costs.Tracker
	logger     core.Logger
	telemetry  core.Telemetry

	stageTimeout time.Duration
}

// WorkflowOption configures a Workflow
type WorkflowOption func(*Workflow)

// WithVisionAnalyzer sets the image analysis collaborator
func WithVisionAnalyzer(v VisionAnalyzer) WorkflowOption {
	return func(w *Workflow) { w.vision = v }
}

// WithResearchService sets the product research collaborator
func WithResearchService(r ResearchService) WorkflowOption {
	return func(w *Workflow) { w.research = r }
}

// WithContentOptimizer sets the content optimization collaborator
func WithContentOptimizer(c ContentOptimizer) WorkflowOption {
	return func(w *Workflow) { w.content = c }
}

// WithOfferManager sets the best-offer manager
func WithOfferManager(m *offers.Manager) WorkflowOption {
	return func(w *Workflow) { w.offers = m }
}

// WithCostTracker sets the cost tracker receiving stage costs
func WithCostTracker(t *costs.Tracker) WorkflowOption {
	return func(w *Workflow) { w.costs = t }
}

// WithWorkflowLogger sets the logger
func WithWorkflowLogger(logger core.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = logger }
}

// WithWorkflowTelemetry sets the telemetry provider
func WithWorkflowTelemetry(t core.Telemetry) WorkflowOption {
	return func(w *Workflow) { w.telemetry = t }
}

// WithStageTimeout overrides the per-stage timeout
func WithStageTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) {
		if d > 0 {
			w.stageTimeout = d
		}
	}
}

// NewWorkflow creates a product-creation workflow
func NewWorkflow(opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		categories:   NewCategoryOptimizer(),
		logger:       &core.NoOpLogger{},
		telemetry:    &core.NoOpTelemetry{},
		stageTimeout: defaultStageTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// run carries the accumulating state of one workflow execution
type run struct {
	workflowID   string
	req          *CreationRequest
	startedAt    time.Time
	improvements []string
	sources      []string
	totalCost    decimal.Decimal
	deadlineHit  bool

	vision   *VisionResult
	research *ResearchResult
	category CategoryRecommendation
	content  *OptimizedContent
	price    float64
	offerCfg *offers.Settings
}

// CreateListing runs every stage in order and compiles the result.
// It fails only on insufficient input: no image data with research
// disabled.
func (w *Workflow) CreateListing(ctx context.Context, req *CreationRequest) (*OptimizedListing, error) {
	if len(req.ImageBytes) == 0 && !req.EnableWebResearch {
		return nil, core.NewFlipError("workflow.create_listing", core.ErrInsufficientInput, "",
			"no image data and web research disabled")
	}

	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	ctx, span := w.telemetry.StartSpan(ctx, "listing.create")
	defer span.End()

	r := &run{
		workflowID: uuid.New().String(),
		req:        req,
		startedAt:  time.Now(),
		totalCost:  decimal.Zero,
	}
	span.SetAttribute("workflow_id", r.workflowID)

	w.analyzeImage(ctx, r)
	w.researchProduct(ctx, r)
	w.optimizeCategory(ctx, r)
	w.optimizeContent(ctx, r)
	w.priceListing(r)
	w.configureBestOffer(r)

	return w.compile(r), nil
}

// stageCtx bounds a stage; reports false when the overall deadline has
// already elapsed and the stage should be skipped
func (w *Workflow) stageCtx(ctx context.Context) (context.Context, context.CancelFunc, bool) {
	if ctx.Err() != nil {
		return ctx, func() {}, false
	}
	stage, cancel := context.WithTimeout(ctx, w.stageTimeout)
	return stage, cancel, true
}

func (w *Workflow) analyzeImage(ctx context.Context, r *run) {
	fallback := func(note string) {
		r.vision = &VisionResult{
			ProductData: ProductData{Title: titleFromFilename(r.req.Filename)},
			Confidence:  0.3,
		}
		r.improvements = append(r.improvements, note)
	}

	if len(r.req.ImageBytes) == 0 {
		fallback("no image provided, listing built from research only")
		return
	}
	if w.vision == nil {
		fallback("image analysis unavailable")
		return
	}

	stage, cancel, ok := w.stageCtx(ctx)
	if !ok {
		r.deadlineHit = true
		fallback("image analysis skipped, workflow deadline reached")
		return
	}
	defer cancel()

	result, err := w.vision.AnalyzeImage(stage, r.req.ImageBytes, "product_photo", r.req.Marketplace, nil)
	if err != nil {
		w.logger.Warn("Image analysis failed", map[string]interface{}{
			"operation":   "image_analysis",
			"workflow_id": r.workflowID,
			"error":       err.Error(),
			"error_kind":  core.ErrorKind(err),
		})
		fallback("image analysis failed, using minimal product data")
		return
	}

	r.vision = result
	r.sources = append(r.sources, "image_analysis")
	w.recordStageCost(r, costs.CategoryVisionAnalysis, "image_analysis", result.CostUSD)
}

func (w *Workflow) researchProduct(ctx context.Context, r *run) {
	if !r.req.EnableWebResearch {
		return
	}

	fallback := func(note string) {
		r.research = &ResearchResult{
			Confidence:  0.3,
			SourcesUsed: []string{"image_analysis_only"},
			Timestamp:   time.Now(),
		}
		r.improvements = append(r.improvements, note)
	}

	if w.research == nil {
		fallback("product research unavailable")
		return
	}

	stage, cancel, ok := w.stageCtx(ctx)
	if !ok {
		r.deadlineHit = true
		fallback("product research skipped, workflow deadline reached")
		return
	}
	defer cancel()

	result, err := w.research.Research(stage, r.vision, r.req.Marketplace)
	if err != nil {
		w.logger.Warn("Product research failed", map[string]interface{}{
			"operation":   "product_research",
			"workflow_id": r.workflowID,
			"error":       err.Error(),
			"error_kind":  core.ErrorKind(err),
		})
		fallback("product research failed, pricing from cost basis or defaults")
		return
	}

	r.research = result
	r.sources = append(r.sources, result.SourcesUsed...)
	w.recordStageCost(r, costs.CategoryMarketResearch, "product_research", result.CostUSD)
}

func (w *Workflow) optimizeCategory(ctx context.Context, r *run) {
	if ctx.Err() != nil {
		r.deadlineHit = true
		r.category = CategoryRecommendation{
			PrimaryCategory: Category{ID: "", Name: ""},
			Confidence:      0,
		}
		return
	}

	attributes := map[string]string{
		"brand":     r.vision.ProductData.Brand,
		"condition": r.vision.ProductData.Condition,
	}
	if r.vision.ProductData.Category != "" {
		attributes["category"] = r.vision.ProductData.Category
	}
	current := r.req.TargetCategory
	if current == "" {
		current = r.vision.ProductData.Category
	}
	r.category = w.categories.OptimizeCategory(r.vision.ProductData.Title, current, attributes)
}

func (w *Workflow) optimizeContent(ctx context.Context, r *run) {
	base := Content{
		Title:         r.vision.ProductData.Title,
		Description:   buildDescription(r.vision.ProductData, r.research),
		ItemSpecifics: baseItemSpecifics(r.vision.ProductData),
	}

	if !r.req.EnableCassiniOptimization || w.content == nil {
		r.content = &OptimizedContent{Content: base}
		return
	}

	stage, cancel, ok := w.stageCtx(ctx)
	if !ok {
		r.deadlineHit = true
		r.content = &OptimizedContent{Content: base}
		r.improvements = append(r.improvements, "content optimization skipped, workflow deadline reached")
		return
	}
	defer cancel()

	result, err := w.content.Optimize(stage, base, r.vision.ProductData, targetKeywords(r.research))
	if err != nil {
		w.logger.Warn("Content optimization failed", map[string]interface{}{
			"operation":   "content_optimization",
			"workflow_id": r.workflowID,
			"error":       err.Error(),
			"error_kind":  core.ErrorKind(err),
		})
		r.content = &OptimizedContent{Content: base}
		r.improvements = append(r.improvements, "content optimization failed, using base content")
		return
	}

	r.content = result
	r.improvements = append(r.improvements, result.Improvements...)
	w.recordStageCost(r, costs.CategoryContentCreation, "content_optimization", result.CostUSD)
}

// priceListing applies the pricing table: competitive stats first, then
// cost basis, then the flat default
func (w *Workflow) priceListing(r *run) {
	var price decimal.Decimal
	pvs := r.req.ProfitVsSpeed

	var comparables []float64
	if r.research != nil {
		comparables = r.research.CompetitivePrices
	}

	switch {
	case len(comparables) > 0:
		avg, min := priceStats(comparables)
		switch {
		case pvs > 0.7:
			price = avg.Mul(decimal.NewFromFloat(1.05))
		case pvs < 0.3:
			price = min.Mul(decimal.NewFromFloat(0.98))
		default:
			price = avg.Mul(decimal.NewFromFloat(0.99))
		}
	case r.req.CostBasis > 0:
		markup := 1.3
		if pvs > 0.5 {
			markup = 1.5
		}
		price = decimal.NewFromFloat(r.req.CostBasis).Mul(decimal.NewFromFloat(markup))
	default:
		price = decimal.NewFromFloat(50.00)
		r.improvements = append(r.improvements, "no pricing data available, used default price")
	}

	r.price, _ = price.Round(2).Float64()
}

func (w *Workflow) configureBestOffer(r *run) {
	if !r.req.EnableBestOffer {
		return
	}

	settings := offers.BalancedDefaults()
	settings.ProfitVsSpeed = r.req.ProfitVsSpeed
	settings.MinProfitMargin = r.req.MinProfitMargin

	if w.offers != nil {
		if err := w.offers.ConfigureUserSettings(r.req.UserID, settings); err != nil {
			w.logger.Warn("Best-offer configuration rejected, using balanced defaults", map[string]interface{}{
				"operation":   "configure_best_offer",
				"workflow_id": r.workflowID,
				"error":       err.Error(),
			})
			settings = offers.BalancedDefaults()
			_ = w.offers.ConfigureUserSettings(r.req.UserID, settings)
		}
	}
	r.offerCfg = &settings
}

// compile assembles the OptimizedListing, enforcing the title limit and
// clamping confidence values
func (w *Workflow) compile(r *run) *OptimizedListing {
	title := r.content.Title
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength-3] + "..."
		r.improvements = append(r.improvements, fmt.Sprintf("title truncated to %d characters", maxTitleLength))
	}

	researchConfidence := 0.0
	if r.research != nil {
		researchConfidence = clamp01(r.research.Confidence)
	}
	visionConfidence := clamp01(r.vision.Confidence)
	if r.deadlineHit {
		// Partial results are worth less
		researchConfidence *= 0.8
		visionConfidence *= 0.8
	}

	keywords := targetKeywords(r.research)
	quality := QualityScore(QualityInput{
		Title:       title,
		Description: r.content.Description,
		PhotoCount:  photoCount(r.req),
		Keywords:    keywords,
	})

	totalCost, _ := r.totalCost.Round(4).Float64()

	listing := &OptimizedListing{
		WorkflowID:         r.workflowID,
		Title:              title,
		Description:        r.content.Description,
		CategoryID:         r.category.PrimaryCategory.ID,
		ItemSpecifics:      r.content.ItemSpecifics,
		SuggestedPrice:     r.price,
		BestOfferSettings:  r.offerCfg,
		CassiniScore:       clampScore(r.content.CassiniScore),
		ResearchConfidence: researchConfidence,
		Improvements:       r.improvements,
		ProcessingTime:     time.Since(r.startedAt),
		TotalCostUSD:       totalCost,
		SourcesUsed:        r.sources,
		QualityScore:       quality,
		Metadata: map[string]interface{}{
			"vision_confidence":   visionConfidence,
			"category_confidence": clamp01(r.category.Confidence),
			"deadline_hit":        r.deadlineHit,
		},
		CreatedAt: time.Now(),
	}

	w.logger.Info("Listing compiled", map[string]interface{}{
		"operation":    "compile_listing",
		"workflow_id":  r.workflowID,
		"price":        listing.SuggestedPrice,
		"category_id":  listing.CategoryID,
		"total_cost":   listing.TotalCostUSD,
		"improvements": len(listing.Improvements),
	})
	return listing
}

// recordStageCost forwards one stage's spend to the cost tracker;
// recording failures never affect the workflow
func (w *Workflow) recordStageCost(r *run, category costs.Category, operation string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	r.totalCost = r.totalCost.Add(decimal.NewFromFloat(costUSD))
	if w.costs == nil {
		return
	}
	w.costs.Record(costs.Entry{
		Timestamp:  time.Now(),
		Category:   category,
		Operation:  operation,
		CostUSD:    decimal.NewFromFloat(costUSD),
		AgentID:    "listing_workflow",
		WorkflowID: r.workflowID,
	})
}

func priceStats(prices []float64) (avg, min decimal.Decimal) {
	sum := decimal.Zero
	min = decimal.NewFromFloat(prices[0])
	for _, p := range prices {
		d := decimal.NewFromFloat(p)
		sum = sum.Add(d)
		if d.LessThan(min) {
			min = d
		}
	}
	avg = sum.Div(decimal.NewFromInt(int64(len(prices))))
	return avg, min
}

func titleFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	base = strings.TrimSpace(base)
	// filepath.Base("") is "."
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "Untitled Item"
	}
	return base
}

func buildDescription(product ProductData, research *ResearchResult) string {
	var b strings.Builder
	b.WriteString(product.Title)
	if product.Brand != "" {
		fmt.Fprintf(&b, "\n\nBrand: %s", product.Brand)
	}
	if product.Condition != "" {
		fmt.Fprintf(&b, "\nCondition: %s", product.Condition)
	}
	features := product.Features
	if research != nil && len(research.Features) > len(features) {
		features = research.Features
	}
	if len(features) > 0 {
		b.WriteString("\n\nFeatures:")
		for _, f := range features {
			fmt.Fprintf(&b, "\n- %s", f)
		}
	}
	return b.String()
}

func baseItemSpecifics(product ProductData) map[string]string {
	specifics := make(map[string]string)
	if product.Brand != "" {
		specifics["Brand"] = product.Brand
	}
	if product.Condition != "" {
		specifics["Condition"] = product.Condition
	}
	return specifics
}

func targetKeywords(research *ResearchResult) []string {
	if research == nil {
		return nil
	}
	return research.Features
}

func photoCount(req *CreationRequest) int {
	if len(req.ImageBytes) > 0 {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
