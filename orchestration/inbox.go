package orchestration

import (
	"context"
	"sync"

	"github.com/flipsync/flipsync/agents"
	"github.com/flipsync/flipsync/core"
)

// defaultInboxCapacity bounds the inter-agent message queue
const defaultInboxCapacity = 256

// Inbox is a bounded queue of inter-agent messages feeding the
// orchestrator's fan-out. It implements agents.MessageSink. Enqueue never
// blocks; a full queue drops the message and returns false.
type Inbox struct {
	orch   *Orchestrator
	ch     chan agents.AgentMessage
	logger core.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
	started   bool
	done      chan struct{}
	drained   chan struct{}
}

// NewInbox creates an inbox for the orchestrator. Capacity ≤ 0 uses the
// default.
func NewInbox(orch *Orchestrator, capacity int) *Inbox {
	if capacity <= 0 {
		capacity = defaultInboxCapacity
	}
	return &Inbox{
		orch:    orch,
		ch:      make(chan agents.AgentMessage, capacity),
		logger:  orch.logger,
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Enqueue accepts one message; false when the queue is full or the inbox
// is stopped
func (in *Inbox) Enqueue(msg agents.AgentMessage) bool {
	select {
	case <-in.done:
		in.orch.noteMessageDropped()
		return false
	default:
	}
	select {
	case in.ch <- msg:
		in.orch.noteMessageEnqueued()
		return true
	default:
		in.orch.noteMessageDropped()
		return false
	}
}

// Start launches the dispatch loop. Messages addressed to a workflow are
// delivered as events on that workflow; messages addressed to an agent go
// straight to it.
func (in *Inbox) Start(ctx context.Context) {
	in.startOnce.Do(func() {
		in.mu.Lock()
		in.started = true
		in.mu.Unlock()
		go in.loop(ctx)
	})
}

func (in *Inbox) loop(ctx context.Context) {
	defer close(in.drained)
	for {
		select {
		case <-ctx.Done():
			return
		case <-in.done:
			// Drain what is already queued, then exit
			for {
				select {
				case msg := <-in.ch:
					in.dispatch(ctx, msg)
				default:
					return
				}
			}
		case msg := <-in.ch:
			in.dispatch(ctx, msg)
		}
	}
}

func (in *Inbox) dispatch(ctx context.Context, msg agents.AgentMessage) {
	if msg.WorkflowID != "" {
		event := Event{
			Type:      msg.Kind,
			Payload:   msg.Payload,
			Timestamp: msg.SentAt,
		}
		if err := in.orch.ProcessEvent(ctx, msg.WorkflowID, event); err != nil {
			in.logger.Warn("Inbox workflow dispatch failed", map[string]interface{}{
				"operation":   "inbox_dispatch",
				"workflow_id": msg.WorkflowID,
				"kind":        msg.Kind,
				"error":       err.Error(),
			})
		}
		return
	}

	in.orch.mu.Lock()
	target, ok := in.orch.agents[msg.ToAgentID]
	in.orch.mu.Unlock()
	if !ok {
		in.logger.Warn("Inbox message for unknown agent", map[string]interface{}{
			"operation": "inbox_dispatch",
			"to":        msg.ToAgentID,
			"kind":      msg.Kind,
		})
		return
	}
	if err := target.ProcessEvent(ctx, msg.Kind, msg.Payload); err != nil {
		in.logger.Warn("Inbox agent dispatch failed", map[string]interface{}{
			"operation": "inbox_dispatch",
			"to":        msg.ToAgentID,
			"kind":      msg.Kind,
			"error":     err.Error(),
		})
	}
}

// Stop closes the inbox and waits for queued messages to drain
func (in *Inbox) Stop() {
	in.stopOnce.Do(func() { close(in.done) })
	in.mu.Lock()
	started := in.started
	in.mu.Unlock()
	if started {
		<-in.drained
	}
}

func (o *Orchestrator) noteMessageEnqueued() {
	o.mu.Lock()
	o.messagesEnqueued++
	o.mu.Unlock()
}

func (o *Orchestrator) noteMessageDropped() {
	o.mu.Lock()
	o.messagesDropped++
	o.mu.Unlock()
}
