package agents

import (
	"context"
	"sync"
	"time"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/core"
)

// fallbackContent is the canonical apology returned when the
// conversational path fails for any reason
const fallbackContent = "I apologize, but I'm having trouble processing your request right now. Please try again in a moment."

// AgentMessage is one inter-agent message handed to the orchestrator
type AgentMessage struct {
	FromAgentID string                 `json:"from_agent_id"`
	ToAgentID   string                 `json:"to_agent_id"`
	WorkflowID  string                 `json:"workflow_id,omitempty"`
	Kind        string                 `json:"kind"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	SentAt      time.Time              `json:"sent_at"`
}

// MessageSink accepts inter-agent messages for fan-out. Enqueue returns
// false when the sink cannot take the message.
type MessageSink interface {
	Enqueue(msg AgentMessage) bool
}

// Manager routes user messages to role-bound agents. Agents are built
// lazily on first use for their role. RouteUserMessage never returns an
// error; failures yield the apology fallback.
type Manager struct {
	client     ai.Client
	prompts    *PromptRegistry
	recognizer *Recognizer
	repo       core.AgentRepository
	sink       MessageSink
	logger     core.Logger

	mu     sync.Mutex
	agents map[Role]*ConversationalAgent
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger
func WithManagerLogger(logger core.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithManagerRepository sets the repository passed to constructed agents
func WithManagerRepository(repo core.AgentRepository) ManagerOption {
	return func(m *Manager) { m.repo = repo }
}

// WithMessageSink sets the orchestrator inbox for inter-agent messages
func WithMessageSink(sink MessageSink) ManagerOption {
	return func(m *Manager) { m.sink = sink }
}

// NewManager creates a communication manager over a shared LLM client
func NewManager(client ai.Client, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:     client,
		recognizer: NewRecognizer(),
		repo:       &core.NoOpAgentRepository{},
		logger:     &core.NoOpLogger{},
		agents:     make(map[Role]*ConversationalAgent),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.prompts = NewPromptRegistry(m.logger)
	return m
}

// Prompts exposes the registry shared by all constructed agents
func (m *Manager) Prompts() *PromptRegistry { return m.prompts }

// RouteUserMessage classifies the message and delegates to the matching
// agent. It never returns an error: any failure produces the fallback
// response with agent type "error" and zero confidence.
func (m *Manager) RouteUserMessage(ctx context.Context, message, userID, conversationID string, metadata map[string]interface{}) *AgentResponse {
	start := time.Now()

	intent := m.recognizer.Classify(message, metadata)

	agent := m.agentFor(intent.TargetRole)
	if agent == nil {
		agent = m.agentFor(RoleLiaison)
	}
	if agent == nil {
		return m.fallback(start, "no agent available")
	}

	resp, err := agent.Handle(ctx, &HandleRequest{
		Message:        message,
		UserID:         userID,
		ConversationID: conversationID,
		Context:        metadata,
	})
	if err != nil {
		m.logger.Error("Agent handling failed, returning fallback", map[string]interface{}{
			"operation":  "route_user_message",
			"intent":     string(intent.Intent),
			"role":       string(intent.TargetRole),
			"error":      err.Error(),
			"error_kind": core.ErrorKind(err),
		})
		return m.fallback(start, core.ErrorKind(err))
	}

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]interface{})
	}
	resp.Metadata["intent"] = string(intent.Intent)
	resp.Metadata["intent_confidence"] = intent.Confidence
	return resp
}

// SendAgentMessage enqueues an inter-agent message for the orchestrator's
// fan-out; false when no sink is configured or the sink is full
func (m *Manager) SendAgentMessage(msg AgentMessage) bool {
	if m.sink == nil {
		return false
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	ok := m.sink.Enqueue(msg)
	if !ok {
		m.logger.Warn("Agent message dropped, sink full", map[string]interface{}{
			"operation": "send_agent_message",
			"from":      msg.FromAgentID,
			"to":        msg.ToAgentID,
			"kind":      msg.Kind,
		})
	}
	return ok
}

// Shutdown drains every constructed agent
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	agents := make([]*ConversationalAgent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.Unlock()

	var firstErr error
	for _, a := range agents {
		if err := a.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// agentFor returns the agent for a role, constructing it on first use
func (m *Manager) agentFor(role Role) *ConversationalAgent {
	if !role.Valid() {
		role = RoleLiaison
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if agent, ok := m.agents[role]; ok {
		return agent
	}
	agent := NewConversationalAgent(role, m.client, m.prompts,
		WithAgentLogger(m.logger),
		WithRepository(m.repo),
	)
	m.agents[role] = agent
	m.logger.Info("Agent initialized", map[string]interface{}{
		"operation": "agent_init",
		"agent_id":  agent.ID(),
		"role":      string(role),
	})
	return agent
}

func (m *Manager) fallback(start time.Time, reason string) *AgentResponse {
	return &AgentResponse{
		Content:      fallbackContent,
		AgentType:    RoleError,
		Confidence:   0.0,
		ResponseTime: time.Since(start),
		Metadata: map[string]interface{}{
			"fallback_reason": reason,
		},
	}
}
