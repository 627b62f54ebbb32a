package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/ouro/pkg/pricing"
	"github.com/rs/zerolog"
)

// defaultAnthropicModels lists model IDs accepted natively by the Anthropic
// endpoint without an OpenRouter-style vendor prefix.
var defaultAnthropicModels = []string{
	"claude-opus-4.6",
	"claude-opus-4",
	"claude-sonnet-4.6",
	"claude-sonnet-4.5",
	"claude-sonnet-4",
}

// defaultOpenAIModels lists model IDs accepted natively by the OpenAI endpoint.
var defaultOpenAIModels = []string{
	"gpt-5.2",
	"gpt-5.2-codex",
	"gpt-4.1",
	"o3",
	"o3-pro",
	"o4-mini",
}

// RouterConfig configures model resolution and validation.
type RouterConfig struct {
	AnthropicAPIKey  string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	// OpenRouterBaseURL overrides the OpenRouter endpoint. Empty uses the
	// public API.
	OpenRouterBaseURL string

	// AnthropicModels and OpenAIModels override the native allow-lists.
	AnthropicModels []string
	OpenAIModels    []string

	// FreeTierModel bypasses validation entirely when PaidTier is unset.
	FreeTierModel string
	PaidTier      bool
}

// Router resolves logical model identifiers to provider endpoints and
// validates them against the active whitelist before any request is sent.
type Router struct {
	cfg        RouterConfig
	pricing    *pricing.Cache
	anthropic  Provider
	openai     Provider
	openrouter Provider
	logger     zerolog.Logger
}

// NewRouter builds a router with providers for every configured credential.
func NewRouter(cfg RouterConfig, cache *pricing.Cache, logger zerolog.Logger) *Router {
	if cache == nil {
		cache = pricing.NewCache()
	}
	if len(cfg.AnthropicModels) == 0 {
		cfg.AnthropicModels = defaultAnthropicModels
	}
	if len(cfg.OpenAIModels) == 0 {
		cfg.OpenAIModels = defaultOpenAIModels
	}

	r := &Router{cfg: cfg, pricing: cache, logger: logger}
	if cfg.AnthropicAPIKey != "" {
		r.anthropic = NewAnthropicProvider(cfg.AnthropicAPIKey)
	}
	if cfg.OpenAIAPIKey != "" {
		r.openai = NewOpenAIProvider(cfg.OpenAIAPIKey)
	}
	if cfg.OpenRouterAPIKey != "" {
		r.openrouter = NewOpenRouterProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
	}
	return r
}

// SetProviders overrides the provider endpoints. Used by tests.
func (r *Router) SetProviders(anthropic, openai, openrouter Provider) {
	r.anthropic = anthropic
	r.openai = openai
	r.openrouter = openrouter
}

// Validate rejects model identifiers that are neither on the active pricing
// whitelist nor, in providerless form, on a native provider's model list.
// It must run before the request is sent; a rejection fails the call
// immediately instead of silently substituting another model.
func (r *Router) Validate(ctx context.Context, model string) error {
	if model == "" {
		return fmt.Errorf("%w: empty model identifier", ErrModelNotAllowed)
	}

	if !r.cfg.PaidTier && model == r.cfg.FreeTierModel {
		return nil
	}
	if r.nativeProvider(model) != nil {
		// Native allow-list entries skip the general whitelist path.
		return nil
	}
	if r.pricing.Table(ctx).Has(model) {
		return nil
	}
	if r.nativeProvider(stripVendorPrefix(model)) != nil {
		return nil
	}

	return fmt.Errorf("%w: %q is not in the pricing whitelist or any native model list", ErrModelNotAllowed, model)
}

// Resolve returns the provider endpoint for a model identifier together with
// the concrete model ID to send on the wire.
func (r *Router) Resolve(model string) (Provider, string, error) {
	if provider := r.nativeProvider(model); provider != nil {
		return provider, model, nil
	}

	if strings.Contains(model, "/") {
		if r.openrouter == nil {
			return nil, "", fmt.Errorf("model %q requires an OpenRouter credential", model)
		}
		return r.openrouter, model, nil
	}

	return nil, "", fmt.Errorf("no provider endpoint for model %q", model)
}

// nativeProvider returns the provider whose own model-ID list contains the
// identifier, or nil.
func (r *Router) nativeProvider(model string) Provider {
	if r.anthropic != nil && containsModel(r.cfg.AnthropicModels, model) {
		return r.anthropic
	}
	if r.openai != nil && containsModel(r.cfg.OpenAIModels, model) {
		return r.openai
	}
	return nil
}

func containsModel(list []string, model string) bool {
	for _, entry := range list {
		if entry == model {
			return true
		}
	}
	return false
}

func stripVendorPrefix(model string) string {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		return model[idx+1:]
	}
	return model
}
