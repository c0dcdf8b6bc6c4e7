// Package llmadapter defines the contract between the LLM work pool and a
// vendor-specific LLM client. Vendor wire protocols (SSE,
// NDJSON, provider-specific auth) are explicitly out of scope; this package
// only models the shape adapters must present and ships one deterministic
// reference implementation for tests and offline CLI use.
package llmadapter

import (
	"context"
	"time"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Request describes one generation or repair call.
type Request struct {
	Variant model.ModelVariant
	Prompt  string
	Stream  bool
}

// Response is what a successful call returns.
type Response struct {
	Code                   string
	Language               string
	ExtractedFromDelimiters bool
	Usage                  model.TokenUsage
	Duration               time.Duration
	FinishReason           string
}

// Chunk is one piece of a streamed response, published for progress
// visibility but not retained.
type Chunk struct {
	Text string
	Done bool
}

// Adapter is implemented once per vendor. The core passes provider and
// model strings through opaquely and requires only that implementations
// respect ctx cancellation.
type Adapter interface {
	// Generate issues a fresh-generation call.
	Generate(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error)

	// GenerateFix issues a repair call, embedding the original code and the
	// errors from the prior attempt. Optional: adapters that cannot repair
	// may return ErrUnsupported.
	GenerateFix(ctx context.Context, originalCode string, errs []string, req Request, onChunk func(Chunk)) (*Response, error)

	// Provider returns the adapter's provider name, used by the rate
	// limiter and for error attribution.
	Provider() string
}
