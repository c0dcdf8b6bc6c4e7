package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// ErrCanceled is returned by Acquire when the caller's context is done
// before admission. No counters are decremented on this path.
var ErrCanceled = errors.New("ratelimiter: acquire canceled")

// ProviderLimits configures one provider's admission control.
type ProviderLimits struct {
	MaxConcurrent        int // 0 means unlimited
	MaxRequestsPerMinute int // 0 means unlimited
}

// Lease is held by a caller between Acquire and Release. Release must be
// called exactly once, on every exit path.
type Lease struct {
	provider string
	limiter  *Limiter
	released bool
	mu       sync.Mutex
}

// Release returns the lease's concurrency slot. Safe to call more than once;
// only the first call has an effect.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return
	}
	l.released = true
	l.limiter.release(l.provider)
}

// providerState holds the per-provider admission primitives.
type providerState struct {
	sem     chan struct{} // nil means unlimited concurrency
	bucket  *rate.Limiter // nil means unlimited rate
}

// Limiter is a process-wide, per-provider rate limiter. Create one per run
// in the orchestrator's constructor; it is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	providers map[string]*providerState
	configs   map[string]ProviderLimits
}

// New creates a Limiter configured with the given per-provider limits.
// Providers not present in config are treated as unlimited.
func New(config map[string]ProviderLimits) *Limiter {
	return &Limiter{
		providers: make(map[string]*providerState),
		configs:   config,
	}
}

func (l *Limiter) stateFor(provider string) *providerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.providers[provider]; ok {
		return st
	}

	cfg := l.configs[provider]
	st := &providerState{}
	if cfg.MaxConcurrent > 0 {
		st.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	if cfg.MaxRequestsPerMinute > 0 {
		burst := cfg.MaxRequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		if burst > 10 {
			burst = 10
		}
		everyPerSecond := float64(cfg.MaxRequestsPerMinute) / 60.0
		st.bucket = rate.NewLimiter(rate.Limit(everyPerSecond), burst)
	}
	l.providers[provider] = st
	return st
}

// Acquire blocks until both a concurrency slot and a requests-per-minute
// token are available for provider, or ctx is done. It never returns a
// "rate exceeded" error; it waits. Upstream 429s are handled by the work
// pool, not here.
func (l *Limiter) Acquire(ctx context.Context, provider string) (*Lease, error) {
	st := l.stateFor(provider)

	if st.sem != nil {
		select {
		case st.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrCanceled, provider)
		}
	}

	if st.bucket != nil {
		if err := st.bucket.Wait(ctx); err != nil {
			if st.sem != nil {
				<-st.sem
			}
			return nil, fmt.Errorf("%w: %s", ErrCanceled, provider)
		}
	}

	return &Lease{provider: provider, limiter: l}, nil
}

// InFlight returns the number of currently outstanding leases for provider
// when the provider has a MaxConcurrent cap. Leases of a provider without a
// cap are not counted: InFlight returns 0 for it.
// Used by property tests to check the concurrency-cap invariant.
func (l *Limiter) InFlight(provider string) int {
	st := l.stateFor(provider)
	if st.sem == nil {
		return 0
	}
	return len(st.sem)
}

func (l *Limiter) release(provider string) {
	st := l.stateFor(provider)
	if st.sem != nil {
		<-st.sem
	}
}
