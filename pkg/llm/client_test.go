package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records the models it was called with and answers via fn.
type fakeProvider struct {
	mu     sync.Mutex
	name   string
	models []string
	fn     func(request Request) (*Response, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Call(ctx context.Context, request Request) (*Response, error) {
	p.mu.Lock()
	p.models = append(p.models, request.Model)
	p.mu.Unlock()
	return p.fn(request)
}

func (p *fakeProvider) calledModels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.models...)
}

// newTestRouter routes every listed model to the given fake via the native
// OpenAI allow-list.
func newTestRouter(fake *fakeProvider, models ...string) *Router {
	router := NewRouter(RouterConfig{OpenAIModels: models}, nil, zerolog.Nop())
	router.SetProviders(nil, fake, nil)
	return router
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestClientFallbackAdvance(t *testing.T) {
	failing := map[string]bool{"m2": true}
	fake := &fakeProvider{name: "openai", fn: nil}
	fake.fn = func(request Request) (*Response, error) {
		if failing[request.Model] {
			return nil, &APIError{Provider: "openai", Model: request.Model, StatusCode: 500, Message: "boom"}
		}
		return &Response{Content: "ok from " + request.Model}, nil
	}

	router := newTestRouter(fake, "m1", "m2", "m3")
	client := NewClient(router, FallbackChain{"m1", "m2", "m3"}, WithSleep(noSleep))

	result, err := client.Call(context.Background(), Request{Model: "m2", MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "m3", result.Model)
	assert.Equal(t, "ok from m3", result.Response.Content)
	assert.Equal(t, []string{"m2", "m3"}, fake.calledModels())
}

func TestClientChainExhaustedRaisesUnderlyingError(t *testing.T) {
	underlying := &APIError{Provider: "openai", Model: "m3", StatusCode: 503, Message: "down"}
	fake := &fakeProvider{name: "openai"}
	fake.fn = func(request Request) (*Response, error) {
		if request.Model == "m3" {
			return nil, underlying
		}
		return nil, &APIError{Provider: "openai", Model: request.Model, StatusCode: 500, Message: "upstream"}
	}

	router := newTestRouter(fake, "m1", "m2", "m3")
	client := NewClient(router, FallbackChain{"m1", "m2", "m3"}, WithSleep(noSleep))

	_, err := client.Call(context.Background(), Request{Model: "m2"})
	require.Error(t, err)
	// The last real failure comes back, not a generic wrapper.
	assert.Same(t, error(underlying), err)
}

func TestClientAttemptBound(t *testing.T) {
	t.Run("chain of N allows at most N+1 attempts", func(t *testing.T) {
		fake := &fakeProvider{name: "openai"}
		fake.fn = func(request Request) (*Response, error) {
			return nil, &APIError{Provider: "openai", Model: request.Model, StatusCode: 500, Message: "always fails"}
		}

		chain := FallbackChain{"m1", "m2", "m3"}
		router := newTestRouter(fake, "m0", "m1", "m2", "m3")
		client := NewClient(router, chain, WithSleep(noSleep), WithMaxAttempts(100))

		_, err := client.Call(context.Background(), Request{Model: "m0"})
		require.Error(t, err)
		assert.LessOrEqual(t, len(fake.calledModels()), len(chain)+1)
	})

	t.Run("max attempts bounds a long chain", func(t *testing.T) {
		fake := &fakeProvider{name: "openai"}
		fake.fn = func(request Request) (*Response, error) {
			return nil, &APIError{Provider: "openai", Model: request.Model, StatusCode: 500, Message: "always fails"}
		}

		chain := FallbackChain{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}
		router := newTestRouter(fake, "m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8")
		client := NewClient(router, chain, WithSleep(noSleep), WithMaxAttempts(3))

		_, err := client.Call(context.Background(), Request{Model: "m1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "attempts exhausted")
		assert.Len(t, fake.calledModels(), 3)
	})
}

func TestClientRateLimitBackoff(t *testing.T) {
	var delays []time.Duration
	fake := &fakeProvider{name: "openai"}
	calls := 0
	fake.fn = func(request Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, &APIError{Provider: "openai", Model: request.Model, StatusCode: 429, Message: "rate limited"}
		}
		return &Response{Content: "ok"}, nil
	}

	router := newTestRouter(fake, "m1", "m2")
	client := NewClient(router, FallbackChain{"m1", "m2"},
		WithBackoffBase(100*time.Millisecond),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)

	_, err := client.Call(context.Background(), Request{Model: "m1"})
	require.NoError(t, err)
	require.Len(t, delays, 1)
	assert.Equal(t, 100*time.Millisecond, delays[0])
}

func TestClientValidationRejectsBeforeCall(t *testing.T) {
	fake := &fakeProvider{name: "openai"}
	fake.fn = func(request Request) (*Response, error) {
		return &Response{Content: "should not get here"}, nil
	}

	router := newTestRouter(fake, "m1")
	client := NewClient(router, nil, WithSleep(noSleep))

	_, err := client.Call(context.Background(), Request{Model: "totally-unknown-model"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotAllowed)
	assert.Empty(t, fake.calledModels(), "no request may be sent for a rejected model")
}

func TestClientValidationFailureStillFallsBack(t *testing.T) {
	fake := &fakeProvider{name: "openai"}
	fake.fn = func(request Request) (*Response, error) {
		return &Response{Content: "served by " + request.Model}, nil
	}

	router := newTestRouter(fake, "m2")
	client := NewClient(router, FallbackChain{"m2"}, WithSleep(noSleep))

	result, err := client.Call(context.Background(), Request{Model: "rejected-model"})
	require.NoError(t, err)
	assert.Equal(t, "m2", result.Model)
}
