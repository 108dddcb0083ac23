package agents

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/ai/providers/mock"
	"github.com/flipsync/flipsync/core"
)

func newTestAgent(role Role, client ai.Client, opts ...AgentOption) *ConversationalAgent {
	return NewConversationalAgent(role, client, NewPromptRegistry(nil), opts...)
}

func handleReq(msg string) *HandleRequest {
	return &HandleRequest{Message: msg, UserID: "u1", ConversationID: "c1"}
}

func TestHandleReturnsResponse(t *testing.T) {
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "List it at $45 based on recent sold comparables in this category.",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleContent, client)

	resp, err := agent.Handle(context.Background(), handleReq("improve my listing"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.AgentType != RoleContent {
		t.Errorf("AgentType = %q, want content", resp.AgentType)
	}
	if resp.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want baseline 0.8", resp.Confidence)
	}
	if resp.Content == "" {
		t.Error("empty content")
	}
	if agent.State() != StateIdle {
		t.Errorf("State = %q, want IDLE after handle", agent.State())
	}
}

func TestResponseConfidenceHeuristic(t *testing.T) {
	long := strings.Repeat("detailed analysis ", 40) // > 500 chars

	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"baseline", "A clear and confident answer about your listing.", 0.8},
		{"short", "Yes.", 0.6},
		{"long", long, 0.9},
		{"uncertain", "It might be worth around $50, but I'm not sure.", 0.6},
		{"short and uncertain", "Possibly.", 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := responseConfidence(tt.content); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("responseConfidence(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestResponseConfidenceFloor(t *testing.T) {
	// Short plus uncertainty markers must not drop below 0.1
	if got := responseConfidence("not sure"); got < 0.1 {
		t.Errorf("confidence = %v, want >= 0.1", got)
	}
}

func TestRequiresFollowup(t *testing.T) {
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "Here are three options for your listing. Would you like me to apply one?",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleLiaison, client)

	resp, err := agent.Handle(context.Background(), handleReq("help"))
	if err != nil {
		t.Fatal(err)
	}
	if !resp.RequiresFollowup {
		t.Error("RequiresFollowup = false, want true for a question back to the user")
	}
}

func TestConversationContextTruncation(t *testing.T) {
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "Understood, noted for this conversation thread.",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleLiaison, client)

	for i := 0; i < 25; i++ {
		if _, err := agent.Handle(context.Background(), handleReq("message")); err != nil {
			t.Fatal(err)
		}
	}

	agent.mu.Lock()
	conv := agent.conversations["c1"]
	msgCount := len(conv.Messages)
	agent.mu.Unlock()

	if msgCount > contextTailLimit {
		t.Errorf("conversation holds %d messages, want <= %d", msgCount, contextTailLimit)
	}
}

func TestHandleProviderErrorPropagates(t *testing.T) {
	client := mock.NewClient(mock.Result{Err: core.ErrRateLimit})
	agent := newTestAgent(RoleMarket, client)

	_, err := agent.Handle(context.Background(), handleReq("price this"))
	if !errors.Is(err, core.ErrRateLimit) {
		t.Errorf("error = %v, want rate limit preserved", err)
	}
	if agent.State() != StateError {
		t.Errorf("State = %q, want ERROR after provider failure", agent.State())
	}
}

func TestHandleRejectedAfterShutdown(t *testing.T) {
	client := mock.NewClient()
	agent := newTestAgent(RoleLiaison, client)

	if err := agent.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if agent.State() != StateOffline {
		t.Errorf("State = %q, want OFFLINE", agent.State())
	}

	_, err := agent.Handle(context.Background(), handleReq("hello"))
	if !errors.Is(err, core.ErrShutdown) {
		t.Errorf("error = %v, want shutdown", err)
	}

	// Second shutdown is a no-op
	if err := agent.Shutdown(context.Background()); err != nil {
		t.Errorf("repeated Shutdown: %v", err)
	}
}

// blockingClient holds every call open until its context is cancelled
type blockingClient struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingClient) GenerateResponse(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestShutdownCancelsInflightAfterDrainWindow(t *testing.T) {
	client := &blockingClient{started: make(chan struct{})}
	agent := newTestAgent(RoleMarket, client, WithDrainWindow(50*time.Millisecond))

	errCh := make(chan error, 1)
	go func() {
		_, err := agent.Handle(context.Background(), handleReq("price this"))
		errCh <- err
	}()
	<-client.started

	if err := agent.Shutdown(context.Background()); !errors.Is(err, core.ErrShutdown) {
		t.Errorf("Shutdown error = %v, want drain-window shutdown error", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, core.ErrShutdown) {
			t.Errorf("in-flight Handle error = %v, want shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call did not return after cancellation")
	}
}

// capturingRepo records decision writes
type capturingRepo struct {
	mu      sync.Mutex
	records []*core.AgentDecisionRecord
	err     error
}

func (r *capturingRepo) LogAgentDecision(ctx context.Context, record *core.AgentDecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return r.err
}

func TestHandleWritesInteractionRecord(t *testing.T) {
	repo := &capturingRepo{}
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "Recorded response with plenty of detail for the seller.",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleExecutive, client, WithRepository(repo))

	if _, err := agent.Handle(context.Background(), handleReq("plan my quarter")); err != nil {
		t.Fatal(err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.records) != 1 {
		t.Fatalf("records = %d, want 1", len(repo.records))
	}
	record := repo.records[0]
	if record.AgentType != "executive" || record.DecisionType != "conversation_response" {
		t.Errorf("record = %+v", record)
	}
}

func TestHandleSurvivesRepositoryFailure(t *testing.T) {
	repo := &capturingRepo{err: core.ErrTransport}
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "The response is still returned even when persistence fails.",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleMarket, client, WithRepository(repo))

	resp, err := agent.Handle(context.Background(), handleReq("price check"))
	if err != nil {
		t.Fatalf("Handle must not propagate repository errors, got %v", err)
	}
	if resp.Content == "" {
		t.Error("response missing despite swallowed repository failure")
	}
}

func TestHandleUsesSuppliedHistoryForPriming(t *testing.T) {
	client := mock.NewClient(mock.Result{Response: &ai.Response{
		Content: "Continuing from your earlier question about shipping.",
		Model:   "gpt-4o-mini",
	}})
	agent := newTestAgent(RoleLogistics, client)

	history := []Message{
		{Role: "user", Content: "how heavy is too heavy for first class"},
		{Role: "assistant", Content: "over 13 ounces"},
	}
	req := &HandleRequest{
		Message: "and for priority?", UserID: "u1", ConversationID: "c2", History: history,
	}
	if _, err := agent.Handle(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	sent := client.Requests()[0]
	if !strings.Contains(sent.Prompt, "over 13 ounces") {
		t.Errorf("prompt %q should include supplied history", sent.Prompt)
	}
}

func TestProcessEventRecorded(t *testing.T) {
	agent := newTestAgent(RoleMarket, mock.NewClient())
	if err := agent.ProcessEvent(context.Background(), "price_drop", map[string]interface{}{"sku": "X1"}); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	events := agent.RecentEvents()
	if len(events) != 1 || events[0] != "price_drop" {
		t.Errorf("RecentEvents = %v", events)
	}
}

func TestMarketPostProcessorAppendsAdvisory(t *testing.T) {
	out := defaultPostProcessor(RoleMarket, "List at $45.")
	if !strings.Contains(out, "market conditions") {
		t.Errorf("market output %q should carry the advisory", out)
	}
	// Other roles pass through untouched
	if got := defaultPostProcessor(RoleContent, "A title."); got != "A title." {
		t.Errorf("content output = %q, want passthrough", got)
	}
}
