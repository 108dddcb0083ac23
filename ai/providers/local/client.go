// Package local implements an HTTP provider for a locally hosted model
// (Ollama-compatible generate API). Registered under the name "local";
// permitted only in non-production configurations.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/ai/providers"
	"github.com/flipsync/flipsync/core"
)

const defaultModel = "gemma3:4b"

// Client implements ai.Client against a local model server
type Client struct {
	*providers.BaseClient
	baseURL string
}

// NewClient creates a new local model client
func NewClient(baseURL string, timeout time.Duration, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := providers.NewBaseClient(timeout, logger)
	base.DefaultModel = defaultModel

	return &Client{
		BaseClient: base,
		baseURL:    baseURL,
	}
}

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// GenerateResponse generates a response via the local model server
func (c *Client) GenerateResponse(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	c.ApplyDefaults(req)
	c.LogRequest("local", req.Model, len(req.Prompt))
	startTime := time.Now()

	body := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, c.ClassifyTransportError(ctx, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.ClassifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.ClassifyStatusError("local", resp.StatusCode, respBody)
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, c.ProtocolError("local", err)
	}

	result := &ai.Response{
		Content:    parsed.Response,
		Provider:   "local",
		Model:      parsed.Model,
		Metadata:   map[string]interface{}{},
		Confidence: 1.0,
	}
	if parsed.EvalCount > 0 || parsed.PromptEvalCount > 0 {
		result.Usage = &ai.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		}
	}

	c.LogResponse("local", result.Model, parsed.PromptEvalCount+parsed.EvalCount, time.Since(startTime))
	return result, nil
}
