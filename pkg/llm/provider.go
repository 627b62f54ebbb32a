package llm

import (
	"context"
)

// Provider is a concrete LLM API endpoint.
type Provider interface {
	// Call makes one model call.
	Call(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name ("anthropic", "openai", "openrouter").
	Name() string
}
