package llmpool

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/ratelimiter"
)

// Pool is the bounded-parallel LLM work executor.
type Pool struct {
	cfg      Config
	registry *AdapterRegistry
	limiter  *ratelimiter.Limiter
	workers  *pool.Pool
}

// New creates a Pool bounded to cfg.GlobalConcurrency concurrent calls,
// gated per-provider by limiter.
func New(cfg Config, registry *AdapterRegistry, limiter *ratelimiter.Limiter) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:      cfg,
		registry: registry,
		limiter:  limiter,
		workers:  pool.New().WithMaxGoroutines(cfg.GlobalConcurrency),
	}
}

// Submit runs item through the pool: acquire a rate-limiter lease for its
// provider, invoke the adapter, retry transient provider errors with
// exponential backoff up to cfg.MaxRetries, and release the lease on every
// exit path. Submit blocks the caller until the item completes,
// cancellation fires, or the item's result is ready; the bound on
// concurrently *running* items is cfg.GlobalConcurrency, enforced by the
// underlying conc pool.
func (p *Pool) Submit(ctx context.Context, item WorkItem) Result {
	resultCh := make(chan Result, 1)
	p.workers.Go(func() {
		resultCh <- p.run(ctx, item)
	})

	select {
	case r := <-resultCh:
		return r
	case <-ctx.Done():
		return Result{Item: item, Err: ctx.Err()}
	}
}

// Wait blocks until every submitted item has finished running. Call once,
// at pool teardown.
func (p *Pool) Wait() { p.workers.Wait() }

func (p *Pool) run(ctx context.Context, item WorkItem) Result {
	start := time.Now()
	adapter, err := p.registry.Get(item.Variant.Provider)
	if err != nil {
		return Result{Item: item, Err: err, Elapsed: time.Since(start)}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()
	}

	lease, err := p.limiter.Acquire(callCtx, adapter.Provider())
	if err != nil {
		return Result{Item: item, Err: err, Elapsed: time.Since(start)}
	}
	defer lease.Release()

	resp, err := p.callWithRetry(callCtx, adapter, item)
	return Result{Item: item, Response: resp, Err: err, Elapsed: time.Since(start)}
}

func (p *Pool) callWithRetry(ctx context.Context, adapter llmadapter.Adapter, item WorkItem) (*llmadapter.Response, error) {
	req := llmadapter.Request{Variant: item.Variant, Prompt: item.Prompt, Stream: item.Stream}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var resp *llmadapter.Response
		var err error
		if item.Kind == KindRepair {
			resp, err = adapter.GenerateFix(ctx, item.OriginalCode, item.PriorErrors, req, item.OnChunk)
		} else {
			resp, err = adapter.Generate(ctx, req, item.OnChunk)
		}

		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var rle *llmadapter.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var te *llmadapter.TimeoutError
	if errors.As(err, &te) {
		return true
	}
	var se *llmadapter.ServerError
	if errors.As(err, &se) {
		return true
	}
	return false
}
