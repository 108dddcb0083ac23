// Package providers contains shared plumbing for LLM provider clients:
// a base HTTP client, default application, and the uniform error taxonomy
// mapping at the provider boundary.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flipsync/flipsync/ai"
	"github.com/flipsync/flipsync/core"
)

// BaseClient provides common functionality for all LLM providers
type BaseClient struct {
	// HTTP client shared per provider; connections pooled
	HTTPClient *http.Client

	// Logger for debugging
	Logger core.Logger

	// Default configuration
	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// NewBaseClient creates a new base client with defaults. Outgoing calls
// are traced; spans propagate through the active tracer provider.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	return &BaseClient{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Logger:             logger,
		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
	}
}

// ApplyDefaults fills unset request fields from client defaults
func (b *BaseClient) ApplyDefaults(req *ai.Request) {
	if req.Model == "" {
		req.Model = b.DefaultModel
	}
	if req.Temperature == 0 {
		req.Temperature = b.DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = b.DefaultMaxTokens
	}
}

// ClassifyTransportError maps a failed round trip to the error taxonomy:
// deadline exhaustion is TIMEOUT, everything else at the network level is
// TRANSPORT.
func (b *BaseClient) ClassifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("llm call exceeded deadline: %w", core.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("llm call timed out: %w", core.ErrTimeout)
	}
	return fmt.Errorf("llm transport failure: %v: %w", err, core.ErrTransport)
}

// ClassifyStatusError maps a non-2xx provider response to the error
// taxonomy. The response body is included for diagnostics only.
func (b *BaseClient) ClassifyStatusError(provider string, statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: invalid or missing API key (status %d): %w", provider, statusCode, core.ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: rate limit exceeded: %w", provider, core.ErrRateLimit)
	default:
		return fmt.Errorf("%s: request failed (status %d): %s: %w", provider, statusCode, truncate(string(body), 200), core.ErrTransport)
	}
}

// ProtocolError wraps a successful HTTP exchange whose body could not be
// understood.
func (b *BaseClient) ProtocolError(provider string, err error) error {
	return fmt.Errorf("%s: malformed response body: %v: %w", provider, err, core.ErrProtocol)
}

// LogRequest logs outgoing API requests
func (b *BaseClient) LogRequest(provider, model string, promptLen int) {
	b.Logger.Debug("LLM request initiated", map[string]interface{}{
		"operation":     "ai_request",
		"provider":      provider,
		"model":         model,
		"prompt_length": promptLen,
	})
}

// LogResponse logs API responses
func (b *BaseClient) LogResponse(provider, model string, tokens int, duration time.Duration) {
	b.Logger.Info("LLM response received", map[string]interface{}{
		"operation":    "ai_response",
		"provider":     provider,
		"model":        model,
		"total_tokens": tokens,
		"duration_ms":  duration.Milliseconds(),
		"status":       "success",
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
