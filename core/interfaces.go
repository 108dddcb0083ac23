package core

import (
	"context"
	"time"
)

// Logger interface - minimal structured logging interface
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// Telemetry interface - optional telemetry support
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents a telemetry span
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// AgentRepository persists agent decisions and interaction records.
// Implementations own their connections; writes from the conversational
// path are best-effort and must not block request completion.
type AgentRepository interface {
	LogAgentDecision(ctx context.Context, record *AgentDecisionRecord) error
}

// AgentDecisionRecord is one persisted interaction or decision by an agent
type AgentDecisionRecord struct {
	AgentID          string                 `json:"agent_id"`
	AgentType        string                 `json:"agent_type"`
	DecisionType     string                 `json:"decision_type"`
	Parameters       map[string]interface{} `json:"parameters"`
	Confidence       float64                `json:"confidence"`
	Rationale        string                 `json:"rationale"`
	RequiresApproval bool                   `json:"requires_approval"`
	Timestamp        time.Time              `json:"timestamp"`
}

// MarketplaceClient provides read access to marketplace listings and
// inventory. Implementations handle their own authentication, token refresh
// and per-host rate limiting (at least one second between requests).
type MarketplaceClient interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]MarketListing, error)
	GetInventory(ctx context.Context, sku string) (*InventoryStatus, error)
	GetSalesMetrics(ctx context.Context, itemID string, days int) (*SalesMetrics, error)
}

// MarketListing is a single marketplace search result
type MarketListing struct {
	ItemID     string  `json:"item_id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Currency   string  `json:"currency"`
	CategoryID string  `json:"category_id"`
	Condition  string  `json:"condition"`
	URL        string  `json:"url"`
}

// InventoryStatus reports stock for one SKU
type InventoryStatus struct {
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SalesMetrics aggregates recent sales activity for one item
type SalesMetrics struct {
	ItemID       string  `json:"item_id"`
	Views        int     `json:"views"`
	Watchers     int     `json:"watchers"`
	QuantitySold int     `json:"quantity_sold"`
	Revenue      float64 `json:"revenue"`
	DaysCovered  int     `json:"days_covered"`
}

// Default no-op implementations

// NoOpLogger provides a no-op logger implementation
type NoOpLogger struct{}

func (n *NoOpLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoOpLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoOpLogger) Debug(msg string, fields map[string]interface{}) {}

// NoOpTelemetry provides a no-op telemetry implementation
type NoOpTelemetry struct{}

func (n *NoOpTelemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoOpSpan{}
}

func (n *NoOpTelemetry) RecordMetric(name string, value float64, labels map[string]string) {}

// NoOpSpan provides a no-op span implementation
type NoOpSpan struct{}

func (n *NoOpSpan) End()                                       {}
func (n *NoOpSpan) SetAttribute(key string, value interface{}) {}
func (n *NoOpSpan) RecordError(err error)                      {}

// NoOpAgentRepository discards decision records
type NoOpAgentRepository struct{}

func (n *NoOpAgentRepository) LogAgentDecision(ctx context.Context, record *AgentDecisionRecord) error {
	return nil
}
