package llm

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouterWithFakes(cfg RouterConfig) (*Router, *fakeProvider, *fakeProvider, *fakeProvider) {
	anthropic := &fakeProvider{name: "anthropic"}
	openai := &fakeProvider{name: "openai"}
	openrouter := &fakeProvider{name: "openrouter"}

	router := NewRouter(cfg, nil, zerolog.Nop())
	router.SetProviders(anthropic, openai, openrouter)
	return router, anthropic, openai, openrouter
}

func TestRouterResolve(t *testing.T) {
	router, _, _, _ := newRouterWithFakes(RouterConfig{})

	t.Run("native anthropic model", func(t *testing.T) {
		provider, wireModel, err := router.Resolve("claude-sonnet-4.6")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", provider.Name())
		assert.Equal(t, "claude-sonnet-4.6", wireModel)
	})

	t.Run("native openai model", func(t *testing.T) {
		provider, _, err := router.Resolve("o4-mini")
		require.NoError(t, err)
		assert.Equal(t, "openai", provider.Name())
	})

	t.Run("vendor-prefixed model routes to openrouter", func(t *testing.T) {
		provider, wireModel, err := router.Resolve("google/gemini-3-pro-preview")
		require.NoError(t, err)
		assert.Equal(t, "openrouter", provider.Name())
		assert.Equal(t, "google/gemini-3-pro-preview", wireModel)
	})

	t.Run("unprefixed unknown model has no endpoint", func(t *testing.T) {
		_, _, err := router.Resolve("mystery-model")
		assert.Error(t, err)
	})
}

func TestRouterValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("pricing whitelist entry passes", func(t *testing.T) {
		router, _, _, _ := newRouterWithFakes(RouterConfig{})
		assert.NoError(t, router.Validate(ctx, "x-ai/grok-3-mini"))
	})

	t.Run("native model passes without prefix", func(t *testing.T) {
		router, _, _, _ := newRouterWithFakes(RouterConfig{})
		assert.NoError(t, router.Validate(ctx, "claude-opus-4.6"))
	})

	t.Run("providerless form of prefixed id checked against native lists", func(t *testing.T) {
		router, _, _, _ := newRouterWithFakes(RouterConfig{
			OpenAIModels: []string{"in-house-model"},
		})
		assert.NoError(t, router.Validate(ctx, "acme/in-house-model"))
	})

	t.Run("unknown model rejected", func(t *testing.T) {
		router, _, _, _ := newRouterWithFakes(RouterConfig{})
		err := router.Validate(ctx, "vendor/not-a-model")
		assert.ErrorIs(t, err, ErrModelNotAllowed)
	})

	t.Run("empty model rejected", func(t *testing.T) {
		router, _, _, _ := newRouterWithFakes(RouterConfig{})
		assert.ErrorIs(t, router.Validate(ctx, ""), ErrModelNotAllowed)
	})

	t.Run("free-tier bypass only without paid flag", func(t *testing.T) {
		cfg := RouterConfig{FreeTierModel: "stepfun/step-3.5-flash:free"}

		router, _, _, _ := newRouterWithFakes(cfg)
		assert.NoError(t, router.Validate(ctx, "stepfun/step-3.5-flash:free"))

		cfg.PaidTier = true
		router, _, _, _ = newRouterWithFakes(cfg)
		assert.ErrorIs(t, router.Validate(ctx, "stepfun/step-3.5-flash:free"), ErrModelNotAllowed)
	})
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&APIError{StatusCode: 429}))
	assert.True(t, IsRateLimited(&APIError{StatusCode: 413}))
	assert.False(t, IsRateLimited(&APIError{StatusCode: 500}))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&APIError{StatusCode: 503}))
	assert.True(t, IsRetryable(ErrModelNotAllowed))
	assert.False(t, IsRetryable(&APIError{StatusCode: 401}))
	assert.False(t, IsRetryable(nil))
}
