package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/ouro/internal/observability"
	"github.com/rs/zerolog"
)

const (
	defaultMaxAttempts    = 6
	defaultRequestTimeout = 4 * time.Minute
	defaultBackoffBase    = time.Second
)

// Client drives model calls through the router with fallback-chain retries.
type Client struct {
	router         *Router
	chain          FallbackChain
	maxAttempts    int
	requestTimeout time.Duration
	backoffBase    time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMaxAttempts bounds total call attempts independent of chain length.
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRequestTimeout bounds each individual model call.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithBackoffBase sets the first rate-limit backoff delay.
func WithBackoffBase(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// WithSleep overrides the backoff sleeper. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a fallback-aware model call client.
func NewClient(router *Router, chain FallbackChain, opts ...ClientOption) *Client {
	observability.EnsureRegistered()

	c := &Client{
		router:         router,
		chain:          chain,
		maxAttempts:    defaultMaxAttempts,
		requestTimeout: defaultRequestTimeout,
		backoffBase:    defaultBackoffBase,
		sleep:          sleepContext,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallResult is a successful model call plus the model that served it.
type CallResult struct {
	Response *Response
	Model    string
	Elapsed  time.Duration
}

// Call validates and executes the request, advancing along the fallback
// chain on failure. Attempts are bounded both by the chain's end and by the
// client's maximum attempt count; when the chain is exhausted the last
// underlying error is returned unchanged.
func (c *Client) Call(ctx context.Context, request Request) (*CallResult, error) {
	model := request.Model
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.attempt(ctx, model, request)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn().
			Str("model", model).
			Int("attempt", attempt).
			Err(err).
			Msg("Model call failed")

		if IsRateLimited(err) {
			delay := c.backoffBase << (attempt - 1)
			c.logger.Info().Dur("delay", delay).Msg("Rate limited, backing off")
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return nil, sleepErr
			}
		}

		next, ok := c.chain.Next(model)
		if !ok {
			return nil, lastErr
		}

		observability.RecordFallbackHop(model)
		c.logger.Info().
			Str("from_model", model).
			Str("to_model", next).
			Msg("Advancing fallback chain")
		model = next
	}

	return nil, fmt.Errorf("model call attempts exhausted after %d tries: %w", c.maxAttempts, lastErr)
}

// attempt validates and executes one call against one model.
func (c *Client) attempt(ctx context.Context, model string, request Request) (*CallResult, error) {
	if err := c.router.Validate(ctx, model); err != nil {
		return nil, err
	}

	provider, wireModel, err := c.router.Resolve(model)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	request.Model = wireModel
	start := time.Now()
	response, err := provider.Call(callCtx, request)
	elapsed := time.Since(start)

	observability.RecordLLMCall(model, elapsed, err == nil)
	if err != nil {
		return nil, err
	}

	return &CallResult{Response: response, Model: model, Elapsed: elapsed}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
