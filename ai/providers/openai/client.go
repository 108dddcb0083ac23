// Package openai implements the OpenAI chat-completions provider.
// Registered under the name "openai"; this is the production provider.
package openai

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

const defaultModel = "gpt-4o-mini"

// Client implements ai.Client for OpenAI
type Client struct {
	*providers.BaseClient
	apiKey    string
	projectID string
	baseURL   string
}

// NewClient creates a new OpenAI client with configuration
func NewClient(apiKey, projectID, baseURL string, timeout time.Duration, logger core.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	base := providers.NewBaseClient(timeout, logger)
	base.DefaultModel = defaultModel

	return &Client{
		BaseClient: base,
		apiKey:     apiKey,
		projectID:  projectID,
		baseURL:    baseURL,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// GenerateResponse generates a response using the OpenAI chat completions API
func (c *Client) GenerateResponse(ctx context.Context, req *ai.Request) (*ai.Response, error) {
	if c.apiKey == "" {
		c.Logger.Error("OpenAI request failed - API key not configured", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  "openai",
			"error":     "api_key_missing",
		})
		return nil, fmt.Errorf("OpenAI API key not configured: %w", core.ErrAuth)
	}

	c.ApplyDefaults(req)
	c.LogRequest("openai", req.Model, len(req.Prompt))
	startTime := time.Now()

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.projectID != "" {
		httpReq.Header.Set("OpenAI-Project", c.projectID)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		classified := c.ClassifyTransportError(ctx, err)
		c.Logger.Error("OpenAI request failed - send error", map[string]interface{}{
			"operation":  "ai_request_error",
			"provider":   "openai",
			"error":      err.Error(),
			"error_kind": core.ErrorKind(classified),
		})
		return nil, classified
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.ClassifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := c.ClassifyStatusError("openai", resp.StatusCode, respBody)
		c.Logger.Error("OpenAI request failed - API error", map[string]interface{}{
			"operation":   "ai_request_error",
			"provider":    "openai",
			"status_code": resp.StatusCode,
			"error_kind":  core.ErrorKind(apiErr),
		})
		return nil, apiErr
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, c.ProtocolError("openai", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, c.ProtocolError("openai", fmt.Errorf("no choices returned"))
	}

	result := &ai.Response{
		Content:  parsed.Choices[0].Message.Content,
		Provider: "openai",
		Model:    parsed.Model,
		Metadata: map[string]interface{}{
			"finish_reason": parsed.Choices[0].FinishReason,
		},
		Confidence: 1.0,
	}
	if parsed.Usage.TotalTokens > 0 {
		result.Usage = &ai.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}

	c.LogResponse("openai", result.Model, parsed.Usage.TotalTokens, time.Since(startTime))
	return result, nil
}
