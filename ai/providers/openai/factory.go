package openai

import (
	"github.com/flipsync/flipsync/ai"
)

// Factory creates OpenAI clients
type Factory struct{}

// Create creates a new OpenAI client from configuration
func (f *Factory) Create(config *ai.ClientConfig) ai.Client {
	client := NewClient(config.APIKey, config.ProjectID, config.BaseURL, config.Timeout, config.Logger)
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
	return "openai"
}

// Description returns a human-readable description
func (f *Factory) Description() string {
	return "OpenAI chat completions API"
}

func init() {
	ai.MustRegister(&Factory{})
}
