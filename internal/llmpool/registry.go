package llmpool

import (
	"fmt"
	"sync"

	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
)

// AdapterRegistry resolves a provider name to the Adapter that handles it,
// grounded on benchflow's executor.ParserRegistry (small thread-safe
// map-backed registry with a constructor and Register/Get pair).
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]llmadapter.Adapter
}

// NewAdapterRegistry creates an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]llmadapter.Adapter)}
}

// Register associates a provider name with its adapter.
func (r *AdapterRegistry) Register(provider string, adapter llmadapter.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[provider] = adapter
}

// Get returns the adapter registered for provider.
func (r *AdapterRegistry) Get(provider string) (llmadapter.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("llmpool: no adapter registered for provider %q", provider)
	}
	return a, nil
}
