package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/core"
	"github.com/flipsync/flipsync/costs"
)

// AgentState is the lifecycle state of one agent instance
type AgentState string

const (
	StateIdle       AgentState = "IDLE"
	StateProcessing AgentState = "PROCESSING"
	StateError      AgentState = "ERROR"
	StateOffline    AgentState = "OFFLINE"
)

// defaultDrainWindow bounds how long Shutdown waits for in-flight calls
const defaultDrainWindow = 30 * time.Second

const (
	// contextTailLimit bounds the retained conversation tail
	contextTailLimit = 20
	// primingLimit bounds how many messages prime the LLM call
	primingLimit = 10
)

// Message is one turn in a conversation
type Message struct {
	Role      string    `json:"role"` // user, assistant, system
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the per-conversation state an agent retains.
// Append-only, truncated to a bounded tail.
type ConversationContext struct {
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id,omitempty"`
	Messages       []Message              `json:"messages"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// AgentResponse is the normalized response returned to callers
type AgentResponse struct {
	Content           string                 `json:"content"`
	AgentType         Role                   `json:"agent_type"`
	Confidence        float64                `json:"confidence"`
	ResponseTime      time.Duration          `json:"response_time"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	RequiresFollowup  bool                   `json:"requires_followup"`
	SuggestedActions  []string               `json:"suggested_actions,omitempty"`
	HandoffSuggestion Role                   `json:"handoff_suggestion,omitempty"`
}

// HandleRequest is one user message for an agent to answer
type HandleRequest struct {
	Message        string
	UserID         string
	ConversationID string

	// History, when supplied, primes the LLM call instead of the agent's
	// internal conversation context
	History []Message

	// Context carries caller-supplied variables merged into the system prompt
	Context map[string]interface{}
}

// PostProcessor adjusts LLM output for a role before it is returned
type PostProcessor func(role Role, content string) string

// ContextHook contributes agent-specific variables to the system prompt
type ContextHook func(req *HandleRequest) map[string]interface{}

// ConversationalAgent is one role-bound agent. It is safe for concurrent
// Handle calls; internal counters and conversation state are guarded by a
// mutex.
type ConversationalAgent struct {
	id      string
	role    Role
	client  ai.Client
	prompts *PromptRegistry
	repo    core.AgentRepository
	logger  core.Logger

	postProcess PostProcessor
	contextHook ContextHook
	drainWindow time.Duration

	mu            sync.Mutex
	state         AgentState
	accepting     bool
	conversations map[string]*ConversationContext
	inflight      map[int64]context.CancelFunc
	nextCall      int64
	handled       int
	failed        int
	recentEvents  []string
	wg            sync.WaitGroup
}

// AgentOption configures a ConversationalAgent
type AgentOption func(*ConversationalAgent)

// WithAgentID overrides the generated agent id
func WithAgentID(id string) AgentOption {
	return func(a *ConversationalAgent) { a.id = id }
}

// WithAgentLogger sets the logger
func WithAgentLogger(logger core.Logger) AgentOption {
	return func(a *ConversationalAgent) { a.logger = logger }
}

// WithRepository sets the decision repository
func WithRepository(repo core.AgentRepository) AgentOption {
	return func(a *ConversationalAgent) { a.repo = repo }
}

// WithPostProcessor replaces the role's default post-processing hook
func WithPostProcessor(fn PostProcessor) AgentOption {
	return func(a *ConversationalAgent) { a.postProcess = fn }
}

// WithContextHook sets the hook contributing system prompt variables
func WithContextHook(fn ContextHook) AgentOption {
	return func(a *ConversationalAgent) { a.contextHook = fn }
}

// WithDrainWindow overrides the shutdown drain window
func WithDrainWindow(d time.Duration) AgentOption {
	return func(a *ConversationalAgent) { a.drainWindow = d }
}

// NewConversationalAgent creates an agent bound to one role
func NewConversationalAgent(role Role, client ai.Client, prompts *PromptRegistry, opts ...AgentOption) *ConversationalAgent {
	a := &ConversationalAgent{
		id:            fmt.Sprintf("%s_%s", role, uuid.New().String()[:8]),
		role:          role,
		client:        client,
		prompts:       prompts,
		repo:          &core.NoOpAgentRepository{},
		logger:        &core.NoOpLogger{},
		postProcess:   defaultPostProcessor,
		drainWindow:   defaultDrainWindow,
		state:         StateIdle,
		accepting:     true,
		conversations: make(map[string]*ConversationContext),
		inflight:      make(map[int64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent's identifier; the role name is its prefix
func (a *ConversationalAgent) ID() string { return a.id }

// Role returns the agent's role
func (a *ConversationalAgent) Role() Role { return a.role }

// State returns the current lifecycle state
func (a *ConversationalAgent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Handle answers one user message. Provider errors are surfaced as typed
// errors; the agent never fabricates a response.
func (a *ConversationalAgent) Handle(ctx context.Context, req *HandleRequest) (*AgentResponse, error) {
	start := time.Now()

	callCtx, callID, err := a.beginHandle(ctx)
	if err != nil {
		return nil, err
	}
	defer a.endHandle(callID)

	conv := a.appendUserMessage(req)
	systemPrompt := a.composeSystemPrompt(req)
	prompt := a.composePrompt(req, conv)

	resp, err := a.client.GenerateResponse(callCtx, &ai.Request{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		CostCategory: costs.CategoryConversation,
		AgentID:      a.id,
	})
	if err != nil {
		a.recordFailure()
		if callCtx.Err() != nil && !a.isAccepting() {
			return nil, core.NewFlipError("agent.handle", core.ErrShutdown, a.id, "agent shutting down during request")
		}
		return nil, fmt.Errorf("agent %s handling message: %w", a.id, err)
	}

	content := a.postProcess(a.role, resp.Content)
	a.appendAssistantMessage(req.ConversationID, content)

	response := &AgentResponse{
		Content:          content,
		AgentType:        a.role,
		Confidence:       responseConfidence(content),
		ResponseTime:     time.Since(start),
		RequiresFollowup: requiresFollowup(content),
		Metadata: map[string]interface{}{
			"model":    resp.Model,
			"provider": resp.Provider,
		},
	}

	a.logDecision(ctx, req, response)
	a.recordSuccess()

	return response, nil
}

// beginHandle admits a call and registers its cancel func for hard drain
func (a *ConversationalAgent) beginHandle(ctx context.Context) (context.Context, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.accepting {
		return nil, 0, core.NewFlipError("agent.handle", core.ErrShutdown, a.id, "agent is shut down")
	}
	callCtx, cancel := context.WithCancel(ctx)
	a.nextCall++
	id := a.nextCall
	a.inflight[id] = cancel
	a.state = StateProcessing
	a.wg.Add(1)
	return callCtx, id, nil
}

func (a *ConversationalAgent) endHandle(id int64) {
	a.mu.Lock()
	if cancel, ok := a.inflight[id]; ok {
		cancel()
		delete(a.inflight, id)
	}
	if len(a.inflight) == 0 && a.state == StateProcessing {
		a.state = StateIdle
	}
	a.mu.Unlock()
	a.wg.Done()
}

// Shutdown stops accepting new calls and waits for in-flight calls to
// complete within the drain window; remaining calls are cancelled and
// surface as shutdown errors
func (a *ConversationalAgent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateOffline {
		a.mu.Unlock()
		return nil
	}
	a.accepting = false
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(a.drainWindow)
	defer timer.Stop()

	var drainErr error
	select {
	case <-done:
	case <-timer.C:
		a.cancelInflight()
		<-done
		drainErr = core.NewFlipError("agent.shutdown", core.ErrShutdown, a.id, "drain window elapsed with calls in flight")
	case <-ctx.Done():
		a.cancelInflight()
		<-done
		drainErr = ctx.Err()
	}

	a.mu.Lock()
	a.state = StateOffline
	a.mu.Unlock()

	a.logger.Info("Agent shut down", map[string]interface{}{
		"operation": "agent_shutdown",
		"agent_id":  a.id,
		"handled":   a.handled,
		"failed":    a.failed,
	})
	return drainErr
}

func (a *ConversationalAgent) cancelInflight() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cancel := range a.inflight {
		cancel()
	}
}

func (a *ConversationalAgent) isAccepting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepting
}

// appendUserMessage records the user turn and returns a snapshot of the
// conversation for priming
func (a *ConversationalAgent) appendUserMessage(req *HandleRequest) *ConversationContext {
	a.mu.Lock()
	defer a.mu.Unlock()

	conv, ok := a.conversations[req.ConversationID]
	if !ok {
		conv = &ConversationContext{
			ConversationID: req.ConversationID,
			UserID:         req.UserID,
			Metadata:       make(map[string]interface{}),
		}
		a.conversations[req.ConversationID] = conv
	}
	conv.Messages = append(conv.Messages, Message{Role: "user", Content: req.Message, Timestamp: time.Now()})
	if len(conv.Messages) > contextTailLimit {
		conv.Messages = conv.Messages[len(conv.Messages)-contextTailLimit:]
	}

	snapshot := &ConversationContext{
		ConversationID: conv.ConversationID,
		UserID:         conv.UserID,
		Messages:       append([]Message(nil), conv.Messages...),
	}
	return snapshot
}

func (a *ConversationalAgent) appendAssistantMessage(conversationID, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conv, ok := a.conversations[conversationID]
	if !ok {
		return
	}
	conv.Messages = append(conv.Messages, Message{Role: "assistant", Content: content, Timestamp: time.Now()})
	if len(conv.Messages) > contextTailLimit {
		conv.Messages = conv.Messages[len(conv.Messages)-contextTailLimit:]
	}
}

// composeSystemPrompt merges the role prompt with agent-specific context
// variables
func (a *ConversationalAgent) composeSystemPrompt(req *HandleRequest) string {
	base := a.prompts.SystemPromptFor(a.role)

	vars := make(map[string]interface{})
	if a.contextHook != nil {
		for k, v := range a.contextHook(req) {
			vars[k] = v
		}
	}
	for k, v := range req.Context {
		vars[k] = v
	}
	if len(vars) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nContext:")
	for k, v := range vars {
		fmt.Fprintf(&b, "\n- %s: %v", k, v)
	}
	return b.String()
}

// composePrompt primes the call with the last messages of the supplied
// history, or the internal conversation when no history was given
func (a *ConversationalAgent) composePrompt(req *HandleRequest, conv *ConversationContext) string {
	messages := req.History
	if len(messages) == 0 {
		messages = conv.Messages
	}
	if len(messages) > primingLimit {
		messages = messages[len(messages)-primingLimit:]
	}

	// Single-turn conversations need no transcript framing
	if len(messages) <= 1 {
		return req.Message
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nRespond to the latest user message.")
	return b.String()
}

func (a *ConversationalAgent) logDecision(ctx context.Context, req *HandleRequest, resp *AgentResponse) {
	record := &core.AgentDecisionRecord{
		AgentID:      a.id,
		AgentType:    string(a.role),
		DecisionType: "conversation_response",
		Parameters: map[string]interface{}{
			"conversation_id": req.ConversationID,
			"user_id":         req.UserID,
			"message_length":  len(req.Message),
			"response_length": len(resp.Content),
		},
		Confidence: resp.Confidence,
		Rationale:  "conversational response",
		Timestamp:  time.Now(),
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.repo.LogAgentDecision(writeCtx, record); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("Failed to persist interaction record", map[string]interface{}{
			"operation": "log_decision",
			"agent_id":  a.id,
			"error":     err.Error(),
		})
	}
}

// ProcessEvent receives one workflow event dispatched by an orchestrator.
// Events are retained in the agent's recent-event tail and surfaced to
// conversations through the context hook if one is installed.
func (a *ConversationalAgent) ProcessEvent(ctx context.Context, eventType string, payload map[string]interface{}) error {
	a.mu.Lock()
	if !a.accepting {
		a.mu.Unlock()
		return core.NewFlipError("agent.process_event", core.ErrShutdown, a.id, "agent is shut down")
	}
	a.recentEvents = append(a.recentEvents, eventType)
	if len(a.recentEvents) > contextTailLimit {
		a.recentEvents = a.recentEvents[len(a.recentEvents)-contextTailLimit:]
	}
	a.mu.Unlock()

	a.logger.Debug("Workflow event received", map[string]interface{}{
		"operation":  "process_event",
		"agent_id":   a.id,
		"event_type": eventType,
		"keys":       len(payload),
	})
	return nil
}

// RecentEvents returns the tail of workflow event types seen by this agent
func (a *ConversationalAgent) RecentEvents() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.recentEvents))
	copy(out, a.recentEvents)
	return out
}

func (a *ConversationalAgent) recordSuccess() {
	a.mu.Lock()
	a.handled++
	a.mu.Unlock()
}

func (a *ConversationalAgent) recordFailure() {
	a.mu.Lock()
	a.failed++
	a.state = StateError
	a.mu.Unlock()
}

// uncertaintyMarkers lower response confidence when present
var uncertaintyMarkers = []string{"not sure", "might be", "possibly", "perhaps"}

// followupCues flag responses that invite another turn
var followupCues = []string{"would you like", "do you want", "shall i", "more information", "let me know if"}

// responseConfidence scores LLM output heuristically: base 0.8, short
// answers penalized, long answers rewarded, hedged answers penalized
func responseConfidence(content string) float64 {
	confidence := 0.8
	if len(content) < 20 {
		confidence -= 0.2
	}
	if len(content) > 500 {
		confidence += 0.1
	}
	lowered := strings.ToLower(content)
	for _, marker := range uncertaintyMarkers {
		if strings.Contains(lowered, marker) {
			confidence -= 0.2
			break
		}
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func requiresFollowup(content string) bool {
	lowered := strings.ToLower(content)
	for _, cue := range followupCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// defaultPostProcessor applies role-specific adjustments to LLM output
func defaultPostProcessor(role Role, content string) string {
	content = strings.TrimSpace(content)
	if role == RoleMarket && !strings.Contains(strings.ToLower(content), "market conditions") {
		content += "\n\nNote: pricing guidance reflects recent market conditions and may change."
	}
	return content
}
