// Package offers implements automated best-offer handling: per-user
// settings, the acceptance threshold calculation, and offer decisions.
package offers

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flipsync/flipsync/core"
)

// Action is the decision taken for one incoming offer
type Action string

const (
	ActionAccept  Action = "ACCEPT"
	ActionDecline Action = "DECLINE"
	ActionCounter Action = "COUNTER"
	ActionIgnore  Action = "IGNORE"
)

// Settings controls automated offer handling for one user. All
// percentage fields are fractions in [0,1].
type Settings struct {
	ProfitVsSpeed              float64 `json:"profit_vs_speed"`
	MinProfitMargin            float64 `json:"min_profit_margin"`
	MaxDiscountPct             float64 `json:"max_discount_pct"`
	AutoAccept                 bool    `json:"auto_accept"`
	AutoCounter                bool    `json:"auto_counter"`
	TimeDecayEnabled           bool    `json:"time_decay_enabled"`
	InitialThreshold           float64 `json:"initial_threshold"`
	TimeDecayDays              int     `json:"time_decay_days"`
	FinalThreshold             float64 `json:"final_threshold"`
	HighInventoryThreshold     int     `json:"high_inventory_threshold"`
	HighInventoryDiscountBonus float64 `json:"high_inventory_discount_bonus"`
}

// BalancedDefaults are the fallback settings when a user has none
func BalancedDefaults() Settings {
	return Settings{
		ProfitVsSpeed:              0.5,
		MinProfitMargin:            0.15,
		MaxDiscountPct:             0.25,
		AutoAccept:                 true,
		AutoCounter:                true,
		TimeDecayEnabled:           true,
		InitialThreshold:           0.90,
		TimeDecayDays:              14,
		FinalThreshold:             0.75,
		HighInventoryThreshold:     10,
		HighInventoryDiscountBonus: 0.05,
	}
}

// Validate checks the settings invariants
func (s Settings) Validate() error {
	percentages := map[string]float64{
		"profit_vs_speed":               s.ProfitVsSpeed,
		"min_profit_margin":             s.MinProfitMargin,
		"max_discount_pct":              s.MaxDiscountPct,
		"initial_threshold":             s.InitialThreshold,
		"final_threshold":               s.FinalThreshold,
		"high_inventory_discount_bonus": s.HighInventoryDiscountBonus,
	}
	for name, v := range percentages {
		if v < 0 || v > 1 {
			return core.NewFlipError("offers.validate", core.ErrValidation, "",
				fmt.Sprintf("%s must be in [0,1], got %v", name, v))
		}
	}
	if s.InitialThreshold < s.FinalThreshold {
		return core.NewFlipError("offers.validate", core.ErrValidation, "",
			"initial_threshold must be >= final_threshold")
	}
	if s.TimeDecayDays < 0 {
		return core.NewFlipError("offers.validate", core.ErrValidation, "",
			"time_decay_days must be >= 0")
	}
	if s.HighInventoryThreshold < 0 {
		return core.NewFlipError("offers.validate", core.ErrValidation, "",
			"high_inventory_threshold must be >= 0")
	}
	return nil
}

// Offer is one incoming best offer
type Offer struct {
	OfferID          string    `json:"offer_id"`
	ListingID        string    `json:"listing_id"`
	BuyerID          string    `json:"buyer_id"`
	OfferAmount      float64   `json:"offer_amount"`
	OfferedAt        time.Time `json:"offered_at"`
	Message          string    `json:"message,omitempty"`
	BuyerFeedback    int       `json:"buyer_feedback_score"`
	BuyerFeedbackPct float64   `json:"buyer_feedback_pct"`
}

// ListingInfo is the listing context an offer decision needs
type ListingInfo struct {
	ListingID        string  `json:"listing_id"`
	ListingPrice     float64 `json:"listing_price"`
	CostBasis        float64 `json:"cost_basis"`
	CurrentInventory int     `json:"current_inventory"`
	DaysListed       int     `json:"days_listed"`
	Views            int     `json:"views"`
	Watchers         int     `json:"watchers"`
}

// Response is the decision for one offer. CounterAmount is set only when
// Action is COUNTER and never exceeds the listing price.
type Response struct {
	Action        Action  `json:"action"`
	CounterAmount float64 `json:"counter_amount,omitempty"`
	Rationale     string  `json:"rationale"`
	Confidence    float64 `json:"confidence"`
}

// decisionRecord is one processed offer retained for statistics
type decisionRecord struct {
	action    Action
	offerPct  float64
	decidedAt time.Time
}

// Statistics aggregates offer outcomes for one user over a window
type Statistics struct {
	UserID        string  `json:"user_id"`
	WindowDays    int     `json:"window_days"`
	Total         int     `json:"total"`
	Accepted      int     `json:"accepted"`
	Declined      int     `json:"declined"`
	Countered     int     `json:"countered"`
	Ignored       int     `json:"ignored"`
	AcceptRate    float64 `json:"accept_rate"`
	AvgOfferRatio float64 `json:"avg_offer_ratio"`
}

// Manager holds per-user settings and decides incoming offers. Safe for
// concurrent use.
type Manager struct {
	logger core.Logger

	mu       sync.Mutex
	settings map[string]Settings
	records  map[string][]decisionRecord
	now      func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the logger
func WithLogger(logger core.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// withNow overrides the clock in tests
func withNow(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an offer manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:   &core.NoOpLogger{},
		settings: make(map[string]Settings),
		records:  make(map[string][]decisionRecord),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ConfigureUserSettings validates and stores settings for a user
func (m *Manager) ConfigureUserSettings(userID string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings[userID] = settings
	m.mu.Unlock()
	m.logger.Info("Best-offer settings configured", map[string]interface{}{
		"operation": "configure_offer_settings",
		"user_id":   userID,
	})
	return nil
}

// SettingsFor returns the user's settings, or balanced defaults
func (m *Manager) SettingsFor(userID string) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		return s
	}
	return BalancedDefaults()
}

// ProcessIncomingOffer decides one offer for the given user's listing.
// Internal errors yield IGNORE with zero confidence rather than an error.
func (m *Manager) ProcessIncomingOffer(userID string, offer Offer, listing ListingInfo) Response {
	resp, err := m.decide(userID, offer, listing)
	if err != nil {
		m.logger.Error("Offer decision failed", map[string]interface{}{
			"operation": "process_offer",
			"offer_id":  offer.OfferID,
			"error":     err.Error(),
		})
		resp = Response{Action: ActionIgnore, Confidence: 0.0, Rationale: "internal error, offer left for manual review"}
	}
	m.recordDecision(userID, resp.Action, offer, listing)
	return resp
}

func (m *Manager) decide(userID string, offer Offer, listing ListingInfo) (Response, error) {
	if offer.OfferAmount <= 0 || listing.ListingPrice <= 0 {
		return Response{}, core.NewFlipError("offers.decide", core.ErrValidation, offer.OfferID,
			"offer amount and listing price must be positive")
	}

	settings := m.SettingsFor(userID)
	threshold := AcceptanceThreshold(settings, listing)
	pct := offer.OfferAmount / listing.ListingPrice

	switch {
	case pct >= threshold:
		return Response{
			Action:     ActionAccept,
			Confidence: 0.9,
			Rationale:  fmt.Sprintf("offer at %.1f%% of list meets the %.1f%% acceptance threshold", pct*100, threshold*100),
		}, nil
	case settings.AutoCounter && pct >= 0.70:
		counter := roundIncrement(listing.ListingPrice*threshold, listing.ListingPrice)
		return Response{
			Action:        ActionCounter,
			CounterAmount: counter,
			Confidence:    0.8,
			Rationale:     fmt.Sprintf("offer at %.1f%% of list is below threshold, countering at $%.2f", pct*100, counter),
		}, nil
	default:
		return Response{
			Action:     ActionDecline,
			Confidence: 0.7,
			Rationale:  fmt.Sprintf("offer at %.1f%% of list is below the %.1f%% threshold", pct*100, threshold*100),
		}, nil
	}
}

// AcceptanceThreshold computes the minimum acceptable fraction of listing
// price for one listing under the given settings
func AcceptanceThreshold(s Settings, listing ListingInfo) float64 {
	base := s.FinalThreshold + s.ProfitVsSpeed*(s.InitialThreshold-s.FinalThreshold)

	if s.TimeDecayEnabled && s.TimeDecayDays > 0 && listing.DaysListed > s.TimeDecayDays {
		excess := listing.DaysListed - s.TimeDecayDays
		if excess > s.TimeDecayDays {
			excess = s.TimeDecayDays
		}
		decay := 1 - 0.15*(float64(excess)/float64(s.TimeDecayDays))
		base *= math.Max(0.85, decay)
	}

	if s.HighInventoryThreshold > 0 && listing.CurrentInventory >= s.HighInventoryThreshold {
		base *= 1 - s.HighInventoryDiscountBonus
	}

	base *= engagementFactor(listing)

	threshold := base
	if listing.ListingPrice > 0 && listing.CostBasis > 0 {
		minForProfit := (listing.CostBasis * (1 + s.MinProfitMargin)) / listing.ListingPrice
		threshold = math.Max(threshold, minForProfit)
	}
	threshold = math.Max(threshold, 1-s.MaxDiscountPct)
	return math.Min(1.0, threshold)
}

// engagementFactor firms or softens the threshold from listing traffic:
// strong daily interest holds firm, a stale listing concedes a little
func engagementFactor(listing ListingInfo) float64 {
	days := listing.DaysListed
	if days < 1 {
		days = 1
	}
	viewsPerDay := float64(listing.Views) / float64(days)
	watchersPerDay := float64(listing.Watchers) / float64(days)

	switch {
	case viewsPerDay > 20 || watchersPerDay > 2:
		return 1.05
	case viewsPerDay < 1 && listing.Watchers == 0:
		return 0.95
	default:
		return 1.0
	}
}

// roundIncrement rounds a counter amount to the nearest $0.50 below $100,
// nearest $1 otherwise, capped at the listing price
func roundIncrement(amount, listingPrice float64) float64 {
	d := decimal.NewFromFloat(amount)
	var grid decimal.Decimal
	if amount < 100 {
		grid = decimal.NewFromFloat(0.5)
	} else {
		grid = decimal.NewFromInt(1)
	}
	rounded := d.Div(grid).Round(0).Mul(grid)

	limit := decimal.NewFromFloat(listingPrice)
	if rounded.GreaterThan(limit) {
		rounded = limit
	}
	out, _ := rounded.Round(2).Float64()
	return out
}

func (m *Manager) recordDecision(userID string, action Action, offer Offer, listing ListingInfo) {
	pct := 0.0
	if listing.ListingPrice > 0 {
		pct = offer.OfferAmount / listing.ListingPrice
	}
	m.mu.Lock()
	m.records[userID] = append(m.records[userID], decisionRecord{
		action:    action,
		offerPct:  pct,
		decidedAt: m.now(),
	})
	m.mu.Unlock()
}

// OfferStatistics aggregates this user's decisions over the last
// windowDays days
func (m *Manager) OfferStatistics(userID string, windowDays int) Statistics {
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := m.now().AddDate(0, 0, -windowDays)

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{UserID: userID, WindowDays: windowDays}
	var pctSum float64
	for _, r := range m.records[userID] {
		if r.decidedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		pctSum += r.offerPct
		switch r.action {
		case ActionAccept:
			stats.Accepted++
		case ActionDecline:
			stats.Declined++
		case ActionCounter:
			stats.Countered++
		case ActionIgnore:
			stats.Ignored++
		}
	}
	if stats.Total > 0 {
		stats.AcceptRate = float64(stats.Accepted) / float64(stats.Total)
		stats.AvgOfferRatio = pctSum / float64(stats.Total)
	}
	return stats
}
