package orchestration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flipsync/flipsync/core"
)

// DecisionContext is the input for one decision request
type DecisionContext struct {
	Context          map[string]interface{} `json:"context"`
	AvailableActions []string               `json:"available_actions"`
	Constraints      map[string]interface{} `json:"constraints,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	StrategyID       string                 `json:"strategy_id,omitempty"`
}

// Decision is the outcome of ProcessContext, tracked as pending until the
// caller records its execution
type Decision struct {
	DecisionID string                 `json:"decision_id"`
	StrategyID string                 `json:"strategy_id,omitempty"`
	Action     string                 `json:"action"`
	Confidence float64                `json:"confidence"`
	Rationale  string                 `json:"rationale"`
	Context    map[string]interface{} `json:"context,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ExecutionResult is the terminal record for one decision
type ExecutionResult struct {
	DecisionID string                 `json:"decision_id"`
	StrategyID string                 `json:"strategy_id,omitempty"`
	Action     string                 `json:"action"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Success    bool                   `json:"success"`
	Metrics    map[string]float64     `json:"metrics,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Strategy groups decisions made under a shared approach
type Strategy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DecisionEngine selects one action for a decision context
type DecisionEngine interface {
	MakeDecision(ctx context.Context, dc DecisionContext) (*Decision, error)
}

// StrategyManager owns the strategy catalog
type StrategyManager interface {
	SelectStrategy(tags []string) (*Strategy, bool)
	CreateStrategy(name string, tags []string) *Strategy
}

// LearningHook receives execution outcomes
type LearningHook interface {
	LearnFromOutcome(ctx context.Context, result ExecutionResult) error
}

// ProcessContext selects a strategy (creating a default one when none
// matches the tags), asks the decision engine for an action, and tracks
// the decision as pending until RecordExecution is called.
func (o *Orchestrator) ProcessContext(ctx context.Context, dc DecisionContext) (*Decision, error) {
	if len(dc.AvailableActions) == 0 {
		return nil, core.NewFlipError("orchestrator.process_context", core.ErrValidation, "", "no available actions")
	}

	strategy, ok := o.strategies.SelectStrategy(dc.Tags)
	if !ok {
		name := "default"
		if len(dc.Tags) > 0 {
			name = strings.Join(dc.Tags, "-")
		}
		strategy = o.strategies.CreateStrategy(name, dc.Tags)
	}
	dc.StrategyID = strategy.ID

	decision, err := o.engine.MakeDecision(ctx, dc)
	if err != nil {
		return nil, err
	}
	if decision.DecisionID == "" {
		decision.DecisionID = uuid.New().String()
	}
	decision.StrategyID = strategy.ID
	decision.CreatedAt = time.Now()

	o.mu.Lock()
	o.pending[decision.DecisionID] = decision
	o.mu.Unlock()

	o.logger.Debug("Decision made", map[string]interface{}{
		"operation":   "process_context",
		"decision_id": decision.DecisionID,
		"strategy_id": strategy.ID,
		"action":      decision.Action,
		"confidence":  decision.Confidence,
	})
	return decision, nil
}

// RecordExecution resolves a pending decision and forwards the outcome to
// the learning hook. Unknown decision ids are accepted; the outcome is
// still forwarded.
func (o *Orchestrator) RecordExecution(ctx context.Context, result ExecutionResult) error {
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	o.mu.Lock()
	delete(o.pending, result.DecisionID)
	o.decisionsRecorded++
	o.mu.Unlock()

	if err := o.learning.LearnFromOutcome(ctx, result); err != nil {
		o.logger.Warn("Learning hook failed", map[string]interface{}{
			"operation":   "record_execution",
			"decision_id": result.DecisionID,
			"error":       err.Error(),
		})
	}
	return nil
}

// PendingDecisions returns the decisions awaiting execution records
func (o *Orchestrator) PendingDecisions() []Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Decision, 0, len(o.pending))
	for _, d := range o.pending {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ruleDecisionEngine is the built-in engine: it prefers an action hinted
// by the context, otherwise takes the first available action
type ruleDecisionEngine struct{}

func (e *ruleDecisionEngine) MakeDecision(_ context.Context, dc DecisionContext) (*Decision, error) {
	action := dc.AvailableActions[0]
	confidence := 0.7
	rationale := "first available action"

	if hinted, ok := dc.Context["preferred_action"].(string); ok {
		for _, a := range dc.AvailableActions {
			if a == hinted {
				action = a
				confidence = 0.85
				rationale = "context preferred action"
				break
			}
		}
	}

	return &Decision{
		Action:     action,
		Confidence: confidence,
		Rationale:  rationale,
		Context:    dc.Context,
	}, nil
}

// memoryStrategyManager keeps strategies in a process-local map keyed by
// their sorted tag set
type memoryStrategyManager struct {
	mu         sync.Mutex
	strategies map[string]*Strategy
}

func newMemoryStrategyManager() *memoryStrategyManager {
	return &memoryStrategyManager{strategies: make(map[string]*Strategy)}
}

func tagKey(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (m *memoryStrategyManager) SelectStrategy(tags []string) (*Strategy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strategies[tagKey(tags)]
	return s, ok
}

func (m *memoryStrategyManager) CreateStrategy(name string, tags []string) *Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tagKey(tags)
	if existing, ok := m.strategies[key]; ok {
		return existing
	}
	s := &Strategy{
		ID:        uuid.New().String(),
		Name:      name,
		Tags:      append([]string(nil), tags...),
		CreatedAt: time.Now(),
	}
	m.strategies[key] = s
	return s
}

// noopLearningHook discards outcomes
type noopLearningHook struct{}

func (h *noopLearningHook) LearnFromOutcome(context.Context, ExecutionResult) error { return nil }
