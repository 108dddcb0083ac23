// Package costs provides per-call LLM cost accounting with daily and monthly
// budget windows and threshold alerts. State is process-local; budgets are
// not distributed. The tracker never rejects a record and never denies calls
// itself - pre-call enforcement is performed by callers using Stats().
package costs

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipsync/flipsync/core"
)

// Category classifies what a cost entry paid for
type Category string

const (
	CategoryConversation    Category = "conversation"
	CategoryVisionAnalysis  Category = "vision_analysis"
	CategoryMarketResearch  Category = "market_research"
	CategoryContentCreation Category = "content_creation"
	CategoryPricingAnalysis Category = "pricing_analysis"
	CategoryEmbeddings      Category = "embeddings"
	CategoryOther           Category = "other"
)

// Entry is one append-only cost record
type Entry struct {
	Timestamp    time.Time       `json:"timestamp"`
	Category     Category        `json:"category"`
	Model        string          `json:"model"`
	Operation    string          `json:"operation"`
	CostUSD      decimal.Decimal `json:"cost_usd"`
	AgentID      string          `json:"agent_id"`
	WorkflowID   string          `json:"workflow_id,omitempty"`
	TokensUsed   int             `json:"tokens_used,omitempty"`
	ResponseTime time.Duration   `json:"response_time,omitempty"`
}

// Alert is fired when spend crosses a budget threshold
type Alert struct {
	Window    string          `json:"window"` // "daily" or "monthly"
	Threshold float64         `json:"threshold"`
	Spent     decimal.Decimal `json:"spent"`
	Limit     decimal.Decimal `json:"limit"`
	FiredAt   time.Time       `json:"fired_at"`
}

// AlertFunc receives budget alerts. Called outside the tracker lock.
type AlertFunc func(Alert)

// Aggregate accumulates spend for one category or model
type Aggregate struct {
	Count   int             `json:"count"`
	Tokens  int             `json:"tokens"`
	CostUSD decimal.Decimal `json:"cost_usd"`
}

// Stats is a point-in-time snapshot of tracker state
type Stats struct {
	SpentDay        decimal.Decimal      `json:"spent_day"`
	SpentMonth      decimal.Decimal      `json:"spent_month"`
	DailyLimitUSD   decimal.Decimal      `json:"daily_limit_usd"`
	MonthlyLimitUSD decimal.Decimal      `json:"monthly_limit_usd"`
	RemainingDay    decimal.Decimal      `json:"remaining_day"`
	CurrentDay      string               `json:"current_day"`
	CurrentMonth    string               `json:"current_month"`
	EntryCount      int                  `json:"entry_count"`
	ByCategory      map[Category]Aggregate `json:"by_category"`
	ByModel         map[string]Aggregate `json:"by_model"`
}

// DefaultAlertThresholds fire at half, 80%, 90% and full budget
var DefaultAlertThresholds = []float64{0.5, 0.8, 0.9, 1.0}

// TrackerConfig configures a Tracker
type TrackerConfig struct {
	DailyLimitUSD   float64
	MonthlyLimitUSD float64
	AlertThresholds []float64
	Logger          core.Logger
	OnAlert         AlertFunc

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Tracker accounts per-call LLM spend against daily and monthly budgets.
// All updates happen atomically under a single lock; threshold alerts fire
// at most once per window and re-arm when the window rolls over.
type Tracker struct {
	mu sync.Mutex

	dailyLimit   decimal.Decimal
	monthlyLimit decimal.Decimal
	thresholds   []float64

	currentDay   string
	currentMonth string
	spentDay     decimal.Decimal
	spentMonth   decimal.Decimal

	firedDay   map[float64]bool
	firedMonth map[float64]bool

	byCategory map[Category]Aggregate
	byModel    map[string]Aggregate
	entryCount int

	logger  core.Logger
	onAlert AlertFunc
	now     func() time.Time
}

// NewTracker creates a cost tracker. Monthly limit of zero defaults to
// 30x the daily limit.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	thresholds := cfg.AlertThresholds
	if len(thresholds) == 0 {
		thresholds = DefaultAlertThresholds
	}
	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)

	daily := decimal.NewFromFloat(cfg.DailyLimitUSD)
	monthly := decimal.NewFromFloat(cfg.MonthlyLimitUSD)
	if monthly.IsZero() {
		monthly = daily.Mul(decimal.NewFromInt(30))
	}

	now := cfg.Now()
	return &Tracker{
		dailyLimit:   daily,
		monthlyLimit: monthly,
		thresholds:   sorted,
		currentDay:   dayKey(now),
		currentMonth: monthKey(now),
		firedDay:     make(map[float64]bool),
		firedMonth:   make(map[float64]bool),
		byCategory:   make(map[Category]Aggregate),
		byModel:      make(map[string]Aggregate),
		logger:       cfg.Logger,
		onAlert:      cfg.OnAlert,
		now:          cfg.Now,
	}
}

func dayKey(t time.Time) string   { return t.Local().Format("2006-01-02") }
func monthKey(t time.Time) string { return t.Local().Format("2006-01") }

// Record accounts one entry: rolls windows if needed, updates spend and
// aggregates, and checks alert thresholds - all under one critical section.
// Record never returns an error and never rejects an entry.
func (t *Tracker) Record(entry Entry) {
	now := t.now()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CostUSD.IsNegative() {
		t.logger.Warn("Ignoring negative cost entry", map[string]interface{}{
			"operation": "cost_record",
			"model":     entry.Model,
			"cost_usd":  entry.CostUSD.String(),
		})
		return
	}

	var alerts []Alert

	t.mu.Lock()
	t.rollWindowsLocked(now)

	t.spentDay = t.spentDay.Add(entry.CostUSD)
	t.spentMonth = t.spentMonth.Add(entry.CostUSD)
	t.entryCount++

	cat := t.byCategory[entry.Category]
	cat.Count++
	cat.Tokens += entry.TokensUsed
	cat.CostUSD = cat.CostUSD.Add(entry.CostUSD)
	t.byCategory[entry.Category] = cat

	mod := t.byModel[entry.Model]
	mod.Count++
	mod.Tokens += entry.TokensUsed
	mod.CostUSD = mod.CostUSD.Add(entry.CostUSD)
	t.byModel[entry.Model] = mod

	alerts = append(alerts,
		t.checkThresholdsLocked("daily", t.spentDay, t.dailyLimit, t.firedDay, now)...)
	alerts = append(alerts,
		t.checkThresholdsLocked("monthly", t.spentMonth, t.monthlyLimit, t.firedMonth, now)...)
	t.mu.Unlock()

	for _, alert := range alerts {
		t.logger.Warn("Budget threshold crossed", map[string]interface{}{
			"operation": "budget_alert",
			"window":    alert.Window,
			"threshold": alert.Threshold,
			"spent_usd": alert.Spent.String(),
			"limit_usd": alert.Limit.String(),
		})
		if t.onAlert != nil {
			t.onAlert(alert)
		}
	}
}

// rollWindowsLocked resets daily/monthly spend at window boundaries and
// re-arms the fired-threshold sets
func (t *Tracker) rollWindowsLocked(now time.Time) {
	if day := dayKey(now); day != t.currentDay {
		t.currentDay = day
		t.spentDay = decimal.Zero
		t.firedDay = make(map[float64]bool)
	}
	if month := monthKey(now); month != t.currentMonth {
		t.currentMonth = month
		t.spentMonth = decimal.Zero
		t.firedMonth = make(map[float64]bool)
	}
}

func (t *Tracker) checkThresholdsLocked(window string, spent, limit decimal.Decimal, fired map[float64]bool, now time.Time) []Alert {
	if !limit.IsPositive() {
		return nil
	}
	var alerts []Alert
	ratio, _ := spent.Div(limit).Float64()
	for _, threshold := range t.thresholds {
		if ratio >= threshold && !fired[threshold] {
			fired[threshold] = true
			alerts = append(alerts, Alert{
				Window:    window,
				Threshold: threshold,
				Spent:     spent,
				Limit:     limit,
				FiredAt:   now,
			})
		}
	}
	return alerts
}

// Stats returns a consistent snapshot of current spend and aggregates
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollWindowsLocked(t.now())

	byCategory := make(map[Category]Aggregate, len(t.byCategory))
	for k, v := range t.byCategory {
		byCategory[k] = v
	}
	byModel := make(map[string]Aggregate, len(t.byModel))
	for k, v := range t.byModel {
		byModel[k] = v
	}

	remaining := t.dailyLimit.Sub(t.spentDay)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Stats{
		SpentDay:        t.spentDay,
		SpentMonth:      t.spentMonth,
		DailyLimitUSD:   t.dailyLimit,
		MonthlyLimitUSD: t.monthlyLimit,
		RemainingDay:    remaining,
		CurrentDay:      t.currentDay,
		CurrentMonth:    t.currentMonth,
		EntryCount:      t.entryCount,
		ByCategory:      byCategory,
		ByModel:         byModel,
	}
}

// CanAfford reports whether an estimated cost fits the remaining daily
// budget. This is a convenience for pre-call viability checks; the tracker
// itself never denies records.
func (t *Tracker) CanAfford(estimatedUSD decimal.Decimal) bool {
	stats := t.Stats()
	return stats.RemainingDay.GreaterThanOrEqual(estimatedUSD)
}
