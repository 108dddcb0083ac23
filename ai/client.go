package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/flipsync/flipsync/core"
	"github.com/flipsync/flipsync/costs"
	"github.com/flipsync/flipsync/perf"
)

// NewClient creates an LLM client using registered providers.
// The returned client is wrapped with instrumentation: exactly one
// performance sample is emitted per call (success or failure) and one cost
// entry is recorded when the provider reports token usage.
func NewClient(opts ...ClientOption) (Client, error) {
	config := &ClientConfig{
		Provider:    string(ProviderOpenAI),
		Environment: core.EnvDevelopment,
		Timeout:     30 * time.Second,
		Temperature: 0.7,
		MaxTokens:   1000,
	}

	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Telemetry == nil {
		config.Telemetry = &core.NoOpTelemetry{}
	}

	// The local provider is a development convenience only
	if config.Provider == string(ProviderLocal) && config.Environment == core.EnvProduction {
		config.Logger.Error("Local LLM provider rejected in production", map[string]interface{}{
			"operation": "ai_client_creation",
			"provider":  config.Provider,
		})
		return nil, fmt.Errorf("local provider not permitted in production: %w", core.ErrInvalidConfiguration)
	}

	factory, exists := GetProvider(config.Provider)
	if !exists {
		config.Logger.Error("LLM provider not registered", map[string]interface{}{
			"operation":           "ai_provider_lookup",
			"requested_provider":  config.Provider,
			"available_providers": ListProviders(),
		})
		return nil, fmt.Errorf("provider %q not registered: %w", config.Provider, core.ErrInvalidConfiguration)
	}

	client := factory.Create(config)
	config.Logger.Info("LLM client created", map[string]interface{}{
		"operation": "ai_client_creation",
		"provider":  config.Provider,
		"timeout":   config.Timeout.String(),
	})

	return &instrumentedClient{
		inner:          client,
		provider:       config.Provider,
		defaultTimeout: config.Timeout,
		perf:           config.Perf,
		costs:          config.Costs,
		telemetry:      config.Telemetry,
	}, nil
}

// instrumentedClient enforces the per-call timeout and does the bookkeeping
// around each call: one perf sample, one cost entry when usage is reported.
type instrumentedClient struct {
	inner          Client
	provider       string
	defaultTimeout time.Duration
	perf           *perf.Monitor
	costs          *costs.Tracker
	telemetry      core.Telemetry
}

func (c *instrumentedClient) GenerateResponse(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := c.telemetry.StartSpan(ctx, "ai.generate_response")
	defer span.End()
	span.SetAttribute("ai.provider", c.provider)
	span.SetAttribute("ai.model", req.Model)
	span.SetAttribute("ai.prompt_length", len(req.Prompt))

	start := time.Now()
	resp, err := c.inner.GenerateResponse(ctx, req)
	elapsed := time.Since(start)

	sample := perf.Sample{
		Timestamp:    start,
		Model:        req.Model,
		ResponseTime: elapsed,
		PromptLen:    len(req.Prompt) + len(req.SystemPrompt),
		Success:      err == nil,
	}

	if err != nil {
		sample.ErrorKind = core.ErrorKind(err)
		span.RecordError(err)
		if c.perf != nil {
			c.perf.Record(sample)
		}
		return nil, err
	}

	resp.ResponseTime = elapsed
	if resp.Usage != nil {
		resp.TokensUsed = resp.Usage.TotalTokens
	} else if resp.TokensUsed == 0 {
		resp.TokensUsed = EstimateTokens(resp.Content)
	}
	sample.ResponseLen = len(resp.Content)
	span.SetAttribute("ai.total_tokens", resp.TokensUsed)

	if c.perf != nil {
		c.perf.Record(sample)
	}

	// Cost is attributed only when the provider reported real usage
	if c.costs != nil && resp.Usage != nil {
		category := req.CostCategory
		if category == "" {
			category = costs.CategoryConversation
		}
		c.costs.Record(costs.Entry{
			Timestamp:    start,
			Category:     category,
			Model:        resp.Model,
			Operation:    "generate_response",
			CostUSD:      costs.EstimateCost(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
			AgentID:      req.AgentID,
			WorkflowID:   req.WorkflowID,
			TokensUsed:   resp.Usage.TotalTokens,
			ResponseTime: elapsed,
		})
	}

	return resp, nil
}
