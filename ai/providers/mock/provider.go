// Package mock provides a scriptable LLM provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/flipsync/flipsync/ai"
)

// Client is a scriptable ai.Client for tests. Responses are returned in
// order; when the script is exhausted the last response repeats. A nil
// script yields a canned response.
type Client struct {
	mu        sync.Mutex
	script    []Result
	callCount int
	requests  []ai.Request
}

// Result is one scripted outcome
type Result struct {
	Response *ai.Response
	Err      error
}

// NewClient creates a mock client with the given script
func NewClient(script ...Result) *Client {
	return &Client{script: script}
}

// GenerateResponse returns the next scripted result
func (c *Client) GenerateResponse(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, *req)
	idx := c.callCount
	c.callCount++

	if len(c.script) == 0 {
		return &ai.Response{
			Content:  "mock response",
			Provider: "mock",
			Model:    req.Model,
			Usage:    &ai.TokenUsage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
		}, nil
	}
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	result := c.script[idx]
	if result.Err != nil {
		return nil, result.Err
	}
	resp := *result.Response
	return &resp, nil
}

// CallCount returns how many calls were made
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callCount
}

// Requests returns a copy of all observed requests
func (c *Client) Requests() []ai.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ai.Request, len(c.requests))
	copy(out, c.requests)
	return out
}
