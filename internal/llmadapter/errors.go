package llmadapter

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by GenerateFix when an adapter cannot repair.
var ErrUnsupported = errors.New("llmadapter: operation not supported")

// ProviderError wraps an adapter-side failure with the provider name
// attached, so callers can report which vendor a failure came from without
// inspecting adapter internals.
type ProviderError struct {
	Provider string
	Cause    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Cause)
}
func (e *ProviderError) Unwrap() error { return e.Cause }

// TimeoutError reports elapsed time when a call exceeds its budget.
type TimeoutError struct {
	Provider     string
	ElapsedMillis int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %dms", e.Provider, e.ElapsedMillis)
}

// RateLimitError signals an upstream 429, handled by the work pool (C) with
// backoff, not by the rate limiter (A).
type RateLimitError struct {
	Provider string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// ServerError signals an upstream 5xx response. Like RateLimitError, it is
// retried by the work pool with exponential backoff rather than failing the
// attempt outright.
type ServerError struct {
	Provider   string
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: server error (status %d)", e.Provider, e.StatusCode)
}
