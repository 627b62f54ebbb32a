package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrChainExhausted is returned by FallbackChain.Next when no candidate
// remains. The retry wrapper surfaces the underlying call error instead.
var ErrChainExhausted = errors.New("fallback chain exhausted")

// ErrModelNotAllowed marks a model identifier rejected by validation before
// any request was sent.
var ErrModelNotAllowed = errors.New("model not allowed")

// APIError is a typed provider failure carrying an HTTP-like status code.
type APIError struct {
	Provider   string
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s call failed (model=%s, status=%d): %s", e.Provider, e.Model, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limit-class failure that should
// back off before the next attempt. 413 is included: oversized payloads on
// free tiers behave like throughput limits.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode == 413
	}

	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// IsRetryable reports whether err is worth another attempt at all.
// Validation rejections are permanent for the current model but still allow
// the chain to advance, so they count as retryable here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelNotAllowed) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 413, 500, 502, 503, 504, 529:
			return true
		case 401, 403, 404:
			return false
		}
		return apiErr.StatusCode >= 500
	}

	msg := err.Error()
	for _, marker := range []string{"ECONNRESET", "ETIMEDOUT", "connection reset", "timeout", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
