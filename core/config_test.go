package core

import (
	"errors"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error: %v", err)
	}

	if cfg.Environment != EnvDevelopment {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.OpenAI.DailyBudgetUSD != 2.00 {
		t.Errorf("DailyBudgetUSD = %v, want 2.00", cfg.OpenAI.DailyBudgetUSD)
	}
	if cfg.OpenAI.MaxCostPerRequest != 0.05 {
		t.Errorf("MaxCostPerRequest = %v, want 0.05", cfg.OpenAI.MaxCostPerRequest)
	}
	if cfg.PerfMaxHistory != 1000 {
		t.Errorf("PerfMaxHistory = %d, want 1000", cfg.PerfMaxHistory)
	}
	if cfg.LocalLLM.Timeout != 30*time.Second {
		t.Errorf("LocalLLM.Timeout = %v, want 30s", cfg.LocalLLM.Timeout)
	}
}

func TestNewConfigEnvironmentVariables(t *testing.T) {
	t.Setenv("FLIPSYNC_ENV", "staging")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_DAILY_BUDGET", "5.50")
	t.Setenv("LOCAL_LLM_HOST", "llm.internal")
	t.Setenv("LOCAL_LLM_PORT", "8080")
	t.Setenv("AI_PERF_MAX_HISTORY", "250")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error: %v", err)
	}

	if cfg.Environment != EnvStaging {
		t.Errorf("Environment = %q, want staging", cfg.Environment)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.DailyBudgetUSD != 5.50 {
		t.Errorf("DailyBudgetUSD = %v, want 5.50", cfg.OpenAI.DailyBudgetUSD)
	}
	if got := cfg.LocalLLMURL(); got != "http://llm.internal:8080" {
		t.Errorf("LocalLLMURL() = %q, want http://llm.internal:8080", got)
	}
	if cfg.PerfMaxHistory != 250 {
		t.Errorf("PerfMaxHistory = %d, want 250", cfg.PerfMaxHistory)
	}
}

func TestNewConfigOptionsOverrideEnv(t *testing.T) {
	t.Setenv("OPENAI_DAILY_BUDGET", "5.50")

	cfg, err := NewConfig(WithDailyBudget(10.00))
	if err != nil {
		t.Fatalf("NewConfig() error: %v", err)
	}
	if cfg.OpenAI.DailyBudgetUSD != 10.00 {
		t.Errorf("DailyBudgetUSD = %v, want option value 10.00", cfg.OpenAI.DailyBudgetUSD)
	}
}

func TestNewConfigProductionRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := NewConfig(WithEnvironment(EnvProduction))
	if err == nil {
		t.Fatal("expected error for production without API key")
	}
	if !errors.Is(err, ErrMissingConfiguration) {
		t.Errorf("error = %v, want ErrMissingConfiguration", err)
	}

	if _, err := NewConfig(WithEnvironment(EnvProduction), WithOpenAIKey("sk-prod")); err != nil {
		t.Errorf("production with API key should validate, got %v", err)
	}
}

func TestNewConfigRejectsUnknownEnvironment(t *testing.T) {
	_, err := NewConfig(WithEnvironment("sandbox"))
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("error = %v, want ErrInvalidConfiguration", err)
	}
}

func TestLocalLLMURLPrecedence(t *testing.T) {
	cfg := &Config{LocalLLM: LocalLLMConfig{BaseURL: "http://custom:9999", Host: "ignored", Port: 1}}
	if got := cfg.LocalLLMURL(); got != "http://custom:9999" {
		t.Errorf("LocalLLMURL() = %q, want base URL to win", got)
	}

	cfg = &Config{}
	if got := cfg.LocalLLMURL(); got != "http://localhost:11434" {
		t.Errorf("LocalLLMURL() = %q, want default localhost:11434", got)
	}
}
