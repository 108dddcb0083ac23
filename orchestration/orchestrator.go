// Package orchestration owns long-running multi-agent workflows: agent
// registration, the workflow state machine, event fan-out and the decision
// pipeline.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flipsync/flipsync/core"
)

// WorkflowState is the lifecycle state of a workflow. The set is closed.
type WorkflowState string

const (
	StatePending   WorkflowState = "PENDING"
	StateRunning   WorkflowState = "RUNNING"
	StateCompleted WorkflowState = "COMPLETED"
	StateFailed    WorkflowState = "FAILED"
	StateCancelled WorkflowState = "CANCELLED"
	StatePaused    WorkflowState = "PAUSED"
)

// Terminal reports whether s admits no further transitions
func (s WorkflowState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// allowedTransitions is the workflow transition table. Transitions from
// terminal states are rejected; records leave only via CleanupWorkflow.
var allowedTransitions = map[WorkflowState][]WorkflowState{
	StatePending: {StateRunning, StateCancelled, StateFailed},
	StateRunning: {StateCompleted, StateFailed, StateCancelled, StatePaused},
	StatePaused:  {StateRunning, StateCancelled, StateFailed},
}

func transitionAllowed(from, to WorkflowState) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Event is one workflow event
type Event struct {
	Type      string                 `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Workflow is the orchestrator-owned record for one workflow
type Workflow struct {
	ID             string                 `json:"id"`
	State          WorkflowState          `json:"state"`
	Config         map[string]interface{} `json:"config"`
	StartedAt      time.Time              `json:"started_at"`
	CompletedAt    time.Time              `json:"completed_at,omitempty"`
	Events         []Event                `json:"events"`
	AssignedAgents []string               `json:"assigned_agents"`
	LastUpdatedAt  time.Time              `json:"last_updated_at"`
}

// Agent is the capability the orchestrator requires of a participant
type Agent interface {
	ID() string
	ProcessEvent(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// HistoryEntry summarizes one finished workflow
type HistoryEntry struct {
	WorkflowID string
	State      WorkflowState
	Duration   time.Duration
	Events     int
}

// defaultHistoryLimit bounds the finished-workflow history
const defaultHistoryLimit = 100

// Metrics is a point-in-time snapshot of orchestrator activity
type Metrics struct {
	RegisteredAgents  int                   `json:"registered_agents"`
	ActiveWorkflows   int                   `json:"active_workflows"`
	WorkflowsByState  map[WorkflowState]int `json:"workflows_by_state"`
	EventsDispatched  int64                 `json:"events_dispatched"`
	DecisionsPending  int                   `json:"decisions_pending"`
	DecisionsRecorded int64                 `json:"decisions_recorded"`
	MessagesEnqueued  int64                 `json:"messages_enqueued"`
	MessagesDropped   int64                 `json:"messages_dropped"`
}

// Orchestrator coordinates registered agents across workflows. All public
// operations are safe for concurrent use; workflow and agent maps are
// guarded by a single mutex, event dispatch happens outside it.
type Orchestrator struct {
	logger    core.Logger
	telemetry core.Telemetry

	engine     DecisionEngine
	strategies StrategyManager
	learning   LearningHook

	historyLimit int

	mu             sync.Mutex
	agents         map[string]Agent
	agentWorkflows map[string]map[string]struct{}
	workflows      map[string]*Workflow
	pending        map[string]*Decision
	history        []HistoryEntry

	eventsDispatched  int64
	decisionsRecorded int64
	messagesEnqueued  int64
	messagesDropped   int64
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(t core.Telemetry) Option {
	return func(o *Orchestrator) { o.telemetry = t }
}

// WithDecisionEngine replaces the built-in decision engine
func WithDecisionEngine(engine DecisionEngine) Option {
	return func(o *Orchestrator) { o.engine = engine }
}

// WithStrategyManager replaces the built-in strategy manager
func WithStrategyManager(sm StrategyManager) Option {
	return func(o *Orchestrator) { o.strategies = sm }
}

// WithLearningHook sets the hook receiving execution outcomes
func WithLearningHook(hook LearningHook) Option {
	return func(o *Orchestrator) { o.learning = hook }
}

// WithHistoryLimit bounds the finished-workflow history
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

// NewOrchestrator creates an orchestrator with in-memory defaults for the
// decision pipeline
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:         &core.NoOpLogger{},
		telemetry:      &core.NoOpTelemetry{},
		historyLimit:   defaultHistoryLimit,
		agents:         make(map[string]Agent),
		agentWorkflows: make(map[string]map[string]struct{}),
		workflows:      make(map[string]*Workflow),
		pending:        make(map[string]*Decision),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.engine == nil {
		o.engine = &ruleDecisionEngine{}
	}
	if o.strategies == nil {
		o.strategies = newMemoryStrategyManager()
	}
	if o.learning == nil {
		o.learning = &noopLearningHook{}
	}
	return o
}

// RegisterAgent adds an agent to the registry
func (o *Orchestrator) RegisterAgent(agent Agent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := agent.ID()
	if _, exists := o.agents[id]; exists {
		return core.NewFlipError("orchestrator.register_agent", core.ErrDuplicate, id, "agent id already registered")
	}
	o.agents[id] = agent
	o.agentWorkflows[id] = make(map[string]struct{})
	o.logger.Info("Agent registered", map[string]interface{}{
		"operation": "register_agent",
		"agent_id":  id,
	})
	return nil
}

// UnregisterAgent removes an agent and detaches it from every workflow it
// was assigned to; false when the id is unknown
func (o *Orchestrator) UnregisterAgent(agentID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.agents[agentID]; !exists {
		return false
	}
	for workflowID := range o.agentWorkflows[agentID] {
		if wf, ok := o.workflows[workflowID]; ok {
			wf.AssignedAgents = removeString(wf.AssignedAgents, agentID)
			wf.LastUpdatedAt = time.Now()
		}
	}
	delete(o.agents, agentID)
	delete(o.agentWorkflows, agentID)
	return true
}

// StartWorkflow creates a workflow and assigns agents from config flags.
// Boolean flags of the form "<rolePrefix>": true each bind one registered
// agent whose id starts with that prefix; flags with no matching agent are
// logged and skipped. The workflow starts RUNNING once created.
func (o *Orchestrator) StartWorkflow(config map[string]interface{}, workflowID string) (string, error) {
	if workflowID == "" {
		workflowID = uuid.New().String()
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.workflows[workflowID]; exists {
		return "", core.NewFlipError("orchestrator.start_workflow", core.ErrDuplicate, workflowID, "workflow id already exists")
	}

	now := time.Now()
	wf := &Workflow{
		ID:            workflowID,
		State:         StatePending,
		Config:        config,
		StartedAt:     now,
		LastUpdatedAt: now,
	}

	for key, value := range config {
		enabled, ok := value.(bool)
		if !ok || !enabled {
			continue
		}
		agentID := o.findAgentByPrefixLocked(key)
		if agentID == "" {
			o.logger.Warn("No agent matches workflow config flag", map[string]interface{}{
				"operation":   "start_workflow",
				"workflow_id": workflowID,
				"flag":        key,
			})
			continue
		}
		wf.AssignedAgents = append(wf.AssignedAgents, agentID)
		o.agentWorkflows[agentID][workflowID] = struct{}{}
	}

	wf.State = StateRunning
	o.workflows[workflowID] = wf

	o.logger.Info("Workflow started", map[string]interface{}{
		"operation":   "start_workflow",
		"workflow_id": workflowID,
		"agents":      len(wf.AssignedAgents),
	})
	return workflowID, nil
}

// findAgentByPrefixLocked picks one registered agent whose id begins with
// prefix; deterministic by choosing the lexicographically smallest match
func (o *Orchestrator) findAgentByPrefixLocked(prefix string) string {
	best := ""
	for id := range o.agents {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	return best
}

// UpdateWorkflowState applies one state transition
func (o *Orchestrator) UpdateWorkflowState(workflowID string, newState WorkflowState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, ok := o.workflows[workflowID]
	if !ok {
		return core.NewFlipError("orchestrator.update_workflow", core.ErrNotFound, workflowID, "workflow not found")
	}
	if !transitionAllowed(wf.State, newState) {
		return core.NewFlipError("orchestrator.update_workflow", core.ErrValidation, workflowID,
			fmt.Sprintf("transition %s -> %s not allowed", wf.State, newState))
	}

	wf.State = newState
	wf.LastUpdatedAt = time.Now()
	if newState.Terminal() {
		wf.CompletedAt = wf.LastUpdatedAt
		o.appendHistoryLocked(wf)
	}

	o.logger.Info("Workflow state updated", map[string]interface{}{
		"operation":   "update_workflow_state",
		"workflow_id": workflowID,
		"state":       string(newState),
	})
	return nil
}

// CancelWorkflow moves a workflow to CANCELLED from any non-terminal state
func (o *Orchestrator) CancelWorkflow(workflowID string) error {
	return o.UpdateWorkflowState(workflowID, StateCancelled)
}

// CleanupWorkflow removes a terminal workflow's record and detaches it
// from its agents' workflow sets
func (o *Orchestrator) CleanupWorkflow(workflowID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	wf, ok := o.workflows[workflowID]
	if !ok {
		return core.NewFlipError("orchestrator.cleanup_workflow", core.ErrNotFound, workflowID, "workflow not found")
	}
	if !wf.State.Terminal() {
		return core.NewFlipError("orchestrator.cleanup_workflow", core.ErrValidation, workflowID,
			fmt.Sprintf("workflow in state %s cannot be cleaned up", wf.State))
	}

	for _, agentID := range wf.AssignedAgents {
		if set, ok := o.agentWorkflows[agentID]; ok {
			delete(set, workflowID)
		}
	}
	delete(o.workflows, workflowID)
	return nil
}

// GetWorkflow returns a copy of the workflow record
func (o *Orchestrator) GetWorkflow(workflowID string) (*Workflow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, ok := o.workflows[workflowID]
	if !ok {
		return nil, core.NewFlipError("orchestrator.get_workflow", core.ErrNotFound, workflowID, "workflow not found")
	}
	cp := *wf
	cp.Events = append([]Event(nil), wf.Events...)
	cp.AssignedAgents = append([]string(nil), wf.AssignedAgents...)
	return &cp, nil
}

// ProcessEvent appends an event to a RUNNING workflow and dispatches it to
// every assigned agent in parallel. A participant error does not change
// the workflow's state; errors are aggregated and returned.
func (o *Orchestrator) ProcessEvent(ctx context.Context, workflowID string, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	o.mu.Lock()
	wf, ok := o.workflows[workflowID]
	if !ok {
		o.mu.Unlock()
		return core.NewFlipError("orchestrator.process_event", core.ErrNotFound, workflowID, "workflow not found")
	}
	if wf.State != StateRunning {
		o.mu.Unlock()
		return core.NewFlipError("orchestrator.process_event", core.ErrValidation, workflowID,
			fmt.Sprintf("workflow in state %s cannot accept events", wf.State))
	}
	wf.Events = append(wf.Events, event)
	wf.LastUpdatedAt = time.Now()

	participants := make([]Agent, 0, len(wf.AssignedAgents))
	for _, agentID := range wf.AssignedAgents {
		if agent, ok := o.agents[agentID]; ok {
			participants = append(participants, agent)
		}
	}
	o.eventsDispatched++
	o.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(participants))
	for _, agent := range participants {
		wg.Add(1)
		go func(a Agent) {
			defer wg.Done()
			if err := a.ProcessEvent(ctx, event.Type, event.Payload); err != nil {
				errCh <- fmt.Errorf("agent %s: %w", a.ID(), err)
			}
		}(agent)
	}
	wg.Wait()
	close(errCh)

	var dispatchErrs []error
	for err := range errCh {
		dispatchErrs = append(dispatchErrs, err)
	}
	if len(dispatchErrs) > 0 {
		return fmt.Errorf("event dispatch for workflow %s: %w", workflowID, errors.Join(dispatchErrs...))
	}
	return nil
}

// GetMetrics returns a snapshot of orchestrator activity
func (o *Orchestrator) GetMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	byState := make(map[WorkflowState]int)
	active := 0
	for _, wf := range o.workflows {
		byState[wf.State]++
		if !wf.State.Terminal() {
			active++
		}
	}
	return Metrics{
		RegisteredAgents:  len(o.agents),
		ActiveWorkflows:   active,
		WorkflowsByState:  byState,
		EventsDispatched:  o.eventsDispatched,
		DecisionsPending:  len(o.pending),
		DecisionsRecorded: o.decisionsRecorded,
		MessagesEnqueued:  o.messagesEnqueued,
		MessagesDropped:   o.messagesDropped,
	}
}

// History returns the bounded tail of finished workflows, newest last
func (o *Orchestrator) History() []HistoryEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]HistoryEntry, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) appendHistoryLocked(wf *Workflow) {
	o.history = append(o.history, HistoryEntry{
		WorkflowID: wf.ID,
		State:      wf.State,
		Duration:   wf.CompletedAt.Sub(wf.StartedAt),
		Events:     len(wf.Events),
	})
	if len(o.history) > o.historyLimit {
		o.history = o.history[len(o.history)-o.historyLimit:]
	}
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
