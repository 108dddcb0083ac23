package local

import (
	"github.com/flipsync/flipsync/ai"
)

// Factory creates local model clients
type Factory struct{}

// Create creates a new local client from configuration
func (f *Factory) Create(config *ai.ClientConfig) ai.Client {
	client := NewClient(config.BaseURL, config.Timeout, config.Logger)
	if config.Model != "" {
		client.DefaultModel = config.Model
	}
	if config.Temperature != 0 {
		client.DefaultTemperature = config.Temperature
	}
	if config.MaxTokens != 0 {
		client.DefaultMaxTokens = config.MaxTokens
	}
	return client
}

// Name returns the provider name
func (f *Factory) Name() string {
	return "local"
}

// Description returns a human-readable description
func (f *Factory) Description() string {
	return "Local model server (Ollama-compatible API)"
}

func init() {
	ai.MustRegister(&Factory{})
}
