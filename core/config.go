package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment identifies the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds all configuration for the FlipSync core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Configuration is read once at process init; changes require restart.
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithEnvironment(core.EnvProduction),
//	    core.WithDailyBudget(5.00),
//	)
type Config struct {
	// Environment controls provider availability (FLIPSYNC_ENV)
	Environment Environment `json:"environment"`

	// OpenAI provider configuration
	OpenAI OpenAIConfig `json:"openai"`

	// Local provider configuration (non-production only)
	LocalLLM LocalLLMConfig `json:"local_llm"`

	// Cache configuration
	CacheURL string `json:"cache_url"`

	// Performance monitor configuration
	PerfMaxHistory int `json:"perf_max_history"`
}

// OpenAIConfig contains OpenAI provider settings.
// The API key is required in production; absence is a hard configuration error.
type OpenAIConfig struct {
	APIKey            string  `json:"-"`
	ProjectID         string  `json:"project_id"`
	BaseURL           string  `json:"base_url"`
	DailyBudgetUSD    float64 `json:"daily_budget_usd"`
	MaxCostPerRequest float64 `json:"max_cost_per_request"`
}

// LocalLLMConfig contains settings for the local HTTP model provider.
// Either BaseURL or Host+Port may be set; BaseURL wins.
type LocalLLMConfig struct {
	BaseURL string        `json:"base_url"`
	Host    string        `json:"host"`
	Port    int           `json:"port"`
	Timeout time.Duration `json:"timeout"`
}

// Option is a functional option for Config
type Option func(*Config)

// WithEnvironment sets the deployment environment
func WithEnvironment(env Environment) Option {
	return func(c *Config) { c.Environment = env }
}

// WithOpenAIKey sets the OpenAI API key
func WithOpenAIKey(key string) Option {
	return func(c *Config) { c.OpenAI.APIKey = key }
}

// WithDailyBudget sets the daily LLM budget in USD
func WithDailyBudget(usd float64) Option {
	return func(c *Config) { c.OpenAI.DailyBudgetUSD = usd }
}

// WithMaxCostPerRequest sets the per-request cost ceiling in USD
func WithMaxCostPerRequest(usd float64) Option {
	return func(c *Config) { c.OpenAI.MaxCostPerRequest = usd }
}

// WithCacheURL sets the Redis-compatible cache URL
func WithCacheURL(url string) Option {
	return func(c *Config) { c.CacheURL = url }
}

// WithPerfMaxHistory sets the performance ring buffer capacity
func WithPerfMaxHistory(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.PerfMaxHistory = n
		}
	}
}

// NewConfig builds configuration from defaults, environment variables and
// options, then validates it. A .env file in the working directory is loaded
// first when present (never overriding already-set variables).
func NewConfig(opts ...Option) (*Config, error) {
	// Best effort - absence of a .env file is the normal case
	_ = godotenv.Load()

	cfg := &Config{
		Environment: EnvDevelopment,
		OpenAI: OpenAIConfig{
			BaseURL:           "https://api.openai.com/v1",
			DailyBudgetUSD:    2.00,
			MaxCostPerRequest: 0.05,
		},
		LocalLLM: LocalLLMConfig{
			Timeout: 30 * time.Second,
		},
		PerfMaxHistory: 1000,
	}

	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays environment variables onto the config
func (c *Config) applyEnvironment() {
	if v := os.Getenv("FLIPSYNC_ENV"); v != "" {
		c.Environment = Environment(v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_PROJECT_ID"); v != "" {
		c.OpenAI.ProjectID = v
	}
	if v := getEnvFloat("OPENAI_DAILY_BUDGET"); v > 0 {
		c.OpenAI.DailyBudgetUSD = v
	}
	if v := getEnvFloat("OPENAI_MAX_COST_PER_REQUEST"); v > 0 {
		c.OpenAI.MaxCostPerRequest = v
	}
	if v := os.Getenv("CACHE_URL"); v != "" {
		c.CacheURL = v
	}
	if v := os.Getenv("LOCAL_LLM_BASE_URL"); v != "" {
		c.LocalLLM.BaseURL = v
	}
	if v := os.Getenv("LOCAL_LLM_HOST"); v != "" {
		c.LocalLLM.Host = v
	}
	if v := getEnvInt("LOCAL_LLM_PORT"); v > 0 {
		c.LocalLLM.Port = v
	}
	if v := getEnvInt("LOCAL_LLM_TIMEOUT"); v > 0 {
		c.LocalLLM.Timeout = time.Duration(v) * time.Second
	}
	if v := getEnvInt("AI_PERF_MAX_HISTORY"); v > 0 {
		c.PerfMaxHistory = v
	}
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q: %w", c.Environment, ErrInvalidConfiguration)
	}

	if c.Environment == EnvProduction && c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production: %w", ErrMissingConfiguration)
	}

	if c.OpenAI.DailyBudgetUSD < 0 || c.OpenAI.MaxCostPerRequest < 0 {
		return fmt.Errorf("budgets must be non-negative: %w", ErrInvalidConfiguration)
	}

	return nil
}

// LocalLLMURL resolves the local provider base URL from BaseURL or Host+Port
func (c *Config) LocalLLMURL() string {
	if c.LocalLLM.BaseURL != "" {
		return c.LocalLLM.BaseURL
	}
	host := c.LocalLLM.Host
	if host == "" {
		host = "localhost"
	}
	port := c.LocalLLM.Port
	if port == 0 {
		port = 11434
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func getEnvFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
