// Package config defines the ouro configuration and its JSON/env loader.
package config

import (
	"fmt"
	"strings"
)

// Config is the top-level ouro configuration.
type Config struct {
	DataDir   string `json:"data_dir" mapstructure:"data_dir"`
	RepoRoot  string `json:"repo_root" mapstructure:"repo_root"`
	DriveRoot string `json:"drive_root" mapstructure:"drive_root"`

	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`
	Models    ModelsConfig    `json:"models" mapstructure:"models"`
	Budget    BudgetConfig    `json:"budget" mapstructure:"budget"`
	Loop      LoopConfig      `json:"loop" mapstructure:"loop"`
	Context   ContextConfig   `json:"context" mapstructure:"context"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Metrics   MetricsConfig   `json:"metrics" mapstructure:"metrics"`
}

// ProvidersConfig holds model-provider credentials and routing flags.
type ProvidersConfig struct {
	AnthropicAPIKey   string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	OpenAIAPIKey      string `json:"openai_api_key" mapstructure:"openai_api_key"`
	OpenRouterAPIKey  string `json:"openrouter_api_key" mapstructure:"openrouter_api_key"`
	OpenRouterBaseURL string `json:"openrouter_base_url" mapstructure:"openrouter_base_url"`
	FreeTierModel     string `json:"free_tier_model" mapstructure:"free_tier_model"`
	PaidTier          bool   `json:"paid_tier" mapstructure:"paid_tier"`
}

// ModelsConfig selects the default model and its fallback chain.
type ModelsConfig struct {
	Default         string   `json:"default" mapstructure:"default"`
	Fallback        []string `json:"fallback" mapstructure:"fallback"`
	MaxOutputTokens int      `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	MaxAttempts     int      `json:"max_attempts" mapstructure:"max_attempts"`
	RequestTimeoutS int      `json:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
}

// BudgetConfig tunes the budget checks performed after every round.
type BudgetConfig struct {
	DefaultUSD       float64 `json:"default_usd" mapstructure:"default_usd"`
	ForceFraction    float64 `json:"force_fraction" mapstructure:"force_fraction"`
	WarnFraction     float64 `json:"warn_fraction" mapstructure:"warn_fraction"`
	AdvisoryCadence  int     `json:"advisory_cadence" mapstructure:"advisory_cadence"`
	SelfCheckCadence int     `json:"self_check_cadence" mapstructure:"self_check_cadence"`
}

// LoopConfig bounds the round loop.
type LoopConfig struct {
	MaxRounds      int `json:"max_rounds" mapstructure:"max_rounds"`
	ToolErrorLimit int `json:"tool_error_limit" mapstructure:"tool_error_limit"`
}

// ContextConfig tunes context assembly and soft caps.
type ContextConfig struct {
	BasePrompt      string   `json:"base_prompt" mapstructure:"base_prompt"`
	SoftCapDefault  int      `json:"soft_cap_default" mapstructure:"soft_cap_default"`
	SoftCapLow      int      `json:"soft_cap_low" mapstructure:"soft_cap_low"`
	LowPrefixes     []string `json:"low_prefixes" mapstructure:"low_prefixes"`
	BibleMaxChars   int      `json:"bible_max_chars" mapstructure:"bible_max_chars"`
	SectionMaxChars int      `json:"section_max_chars" mapstructure:"section_max_chars"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	ShellTimeoutS    int  `json:"shell_timeout_seconds" mapstructure:"shell_timeout_seconds"`
	BrowserEnabled   bool `json:"browser_enabled" mapstructure:"browser_enabled"`
	BrowserHeadless  bool `json:"browser_headless" mapstructure:"browser_headless"`
	BrowserNoSandbox bool `json:"browser_no_sandbox" mapstructure:"browser_no_sandbox"`
}

// LoggingConfig configures the zerolog setup.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Default:         "anthropic/claude-opus-4.6",
			Fallback:        []string{"anthropic/claude-opus-4.6", "openai/gpt-5.2", "google/gemini-3-pro-preview"},
			MaxOutputTokens: 8192,
			MaxAttempts:     6,
			RequestTimeoutS: 240,
		},
		Budget: BudgetConfig{
			DefaultUSD:       5.0,
			ForceFraction:    0.5,
			WarnFraction:     0.3,
			AdvisoryCadence:  10,
			SelfCheckCadence: 50,
		},
		Loop: LoopConfig{
			MaxRounds:      200,
			ToolErrorLimit: 20,
		},
		Context: ContextConfig{
			SoftCapDefault: 8192,
			SoftCapLow:     4096,
			LowPrefixes:    []string{"groq/", "google/"},
		},
		Tools: ToolsConfig{
			ShellTimeoutS:   120,
			BrowserHeadless: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Addr: ":9091",
		},
	}
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Models.Default == "" {
		return fmt.Errorf("models.default cannot be empty")
	}
	if c.Providers.AnthropicAPIKey == "" && c.Providers.OpenAIAPIKey == "" && c.Providers.OpenRouterAPIKey == "" {
		return fmt.Errorf("at least one provider API key is required")
	}
	if c.Budget.ForceFraction <= 0 || c.Budget.WarnFraction <= 0 {
		return fmt.Errorf("budget fractions must be positive")
	}
	if c.Budget.WarnFraction >= c.Budget.ForceFraction {
		return fmt.Errorf("budget.warn_fraction must be below budget.force_fraction")
	}
	if c.Loop.MaxRounds <= 0 {
		return fmt.Errorf("loop.max_rounds must be positive")
	}
	if c.Context.SoftCapLow > c.Context.SoftCapDefault {
		return fmt.Errorf("context.soft_cap_low cannot exceed context.soft_cap_default")
	}
	for _, prefix := range c.Context.LowPrefixes {
		if !strings.HasSuffix(prefix, "/") {
			return fmt.Errorf("context.low_prefixes entries must end with '/': %q", prefix)
		}
	}
	return nil
}
