// Package ai provides the LLM client layer: a uniform request/response
// contract over one configured provider, a provider factory registry, and
// an instrumented client that emits performance samples and cost entries.
//
// Exactly one provider is addressed per client, chosen at construction.
// The layer performs no retries; retry and stale-cache fallback are the
// caller's responsibility.
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/flipsync/flipsync/costs"
)

// Request describes one LLM generation call
type Request struct {
	Prompt       string
	SystemPrompt string
	Model        string
	Temperature  float32
	MaxTokens    int

	// Timeout bounds the call end-to-end; zero uses the client default
	Timeout time.Duration

	// CostCategory classifies the resulting cost entry; empty defaults to
	// the conversational category
	CostCategory costs.Category

	// AgentID and WorkflowID attribute the spend, when known
	AgentID    string
	WorkflowID string
}

// TokenUsage reports provider token accounting
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the uniform LLM response shape
type Response struct {
	Content      string                 `json:"content"`
	Provider     string                 `json:"provider"`
	Model        string                 `json:"model"`
	ResponseTime time.Duration          `json:"response_time"`
	TokensUsed   int                    `json:"tokens_used"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Confidence   float64                `json:"confidence"`

	// Usage is set only when the provider reported token accounting
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Client is the uniform LLM client interface
type Client interface {
	GenerateResponse(ctx context.Context, req *Request) (*Response, error)
}

// EstimateTokens approximates token usage as the word count of content.
// Used when a provider does not report usage.
func EstimateTokens(content string) int {
	return len(strings.Fields(content))
}
