package config

import (
	"fmt"
	"time"
)

// Evaluator providers
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// EvaluatorConfig holds the LLM evaluator settings
type EvaluatorConfig struct {
	Provider          string `json:"provider"`
	GeminiAPIKey      string `json:"-"` // Never serialize
	GeminiBaseURL     string `json:"geminiBaseUrl"`
	GeminiModel       string `json:"geminiModel"`
	AnthropicAPIKey   string `json:"-"`
	AnthropicModel    string `json:"anthropicModel"`
	MaxTokens         int64  `json:"maxTokens"`
	TimeoutMS         int    `json:"timeoutMs"`
	RequestsPerMinute int    `json:"requestsPerMinute"`
	PassingScore      int    `json:"passingScore"`
}

// DefaultEvaluatorConfig reads evaluator settings from the environment.
// Without an explicit provider, Gemini is used when its key is set and the
// mock evaluator otherwise.
func DefaultEvaluatorConfig() *EvaluatorConfig {
	cfg := &EvaluatorConfig{
		Provider:          getEnv("EVALUATOR_PROVIDER", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		MaxTokens:         int64(getInt("EVALUATOR_MAX_TOKENS", 1024)),
		TimeoutMS:         getInt("EVALUATOR_TIMEOUT_MS", 15000),
		RequestsPerMinute: getInt("EVALUATOR_REQUESTS_PER_MINUTE", 60),
		PassingScore:      getInt("PASSING_SCORE", 7),
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderMock
		if cfg.GeminiAPIKey != "" {
			cfg.Provider = ProviderGemini
		}
	}
	return cfg
}

func (c *EvaluatorConfig) Validate() error {
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini evaluator")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic evaluator")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown EVALUATOR_PROVIDER %q", c.Provider)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("EVALUATOR_TIMEOUT_MS must be positive")
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("EVALUATOR_REQUESTS_PER_MINUTE must be positive")
	}
	if c.PassingScore < 0 || c.PassingScore > 10 {
		return fmt.Errorf("PASSING_SCORE must be between 0 and 10")
	}
	return nil
}

func (c *EvaluatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ModelEndpoint returns the Gemini generateContent endpoint for the configured model
func (c *EvaluatorConfig) ModelEndpoint() string {
	return c.GeminiBaseURL + "/" + c.GeminiModel + ":generateContent"
}
