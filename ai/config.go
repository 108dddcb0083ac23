package ai

import (
	"time"

	"github.com/flipsync/flipsync/core"
	"github.com/flipsync/flipsync/costs"
	"github.com/flipsync/flipsync/perf"
)

// Provider identifies an LLM provider type
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderLocal  Provider = "local"
)

// ClientConfig holds configuration for LLM client creation
type ClientConfig struct {
	// Provider to use; exactly one per client
	Provider string

	// Environment gates provider availability: the local provider is
	// rejected in production
	Environment core.Environment

	// API credentials
	APIKey    string
	ProjectID string
	BaseURL   string

	// Connection settings
	Timeout time.Duration

	// Model defaults
	Model       string
	Temperature float32
	MaxTokens   int

	Logger    core.Logger
	Telemetry core.Telemetry

	// Instrumentation sinks; nil disables the respective side effect
	Perf  *perf.Monitor
	Costs *costs.Tracker
}

// ClientOption configures an LLM client
type ClientOption func(*ClientConfig)

// WithProvider sets the provider name
func WithProvider(provider string) ClientOption {
	return func(c *ClientConfig) { c.Provider = provider }
}

// WithEnvironment sets the deployment environment gate
func WithEnvironment(env core.Environment) ClientOption {
	return func(c *ClientConfig) { c.Environment = env }
}

// WithAPIKey sets the API key
func WithAPIKey(key string) ClientOption {
	return func(c *ClientConfig) { c.APIKey = key }
}

// WithProjectID sets the optional provider project id
func WithProjectID(id string) ClientOption {
	return func(c *ClientConfig) { c.ProjectID = id }
}

// WithBaseURL sets the base URL for the provider API
func WithBaseURL(url string) ClientOption {
	return func(c *ClientConfig) { c.BaseURL = url }
}

// WithTimeout sets the default end-to-end call timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) { c.Timeout = timeout }
}

// WithModel sets the default model identifier
func WithModel(model string) ClientOption {
	return func(c *ClientConfig) { c.Model = model }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ClientOption {
	return func(c *ClientConfig) { c.Logger = logger }
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(telemetry core.Telemetry) ClientOption {
	return func(c *ClientConfig) { c.Telemetry = telemetry }
}

// WithPerfMonitor wires the performance monitor sink
func WithPerfMonitor(m *perf.Monitor) ClientOption {
	return func(c *ClientConfig) { c.Perf = m }
}

// WithCostTracker wires the cost tracker sink
func WithCostTracker(t *costs.Tracker) ClientOption {
	return func(c *ClientConfig) { c.Costs = t }
}

// FromCoreConfig derives client options from process configuration
func FromCoreConfig(cfg *core.Config) []ClientOption {
	opts := []ClientOption{
		WithEnvironment(cfg.Environment),
		WithAPIKey(cfg.OpenAI.APIKey),
		WithProjectID(cfg.OpenAI.ProjectID),
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.OpenAI.BaseURL))
	}
	return opts
}
