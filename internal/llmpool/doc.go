// Package llmpool is the bounded-parallel executor for LLM calls.
// Each work item acquires a lease from the rate limiter
// for its provider before the adapter is invoked, retries transient
// provider errors with exponential backoff, and reports cancellation
// promptly. Bounded parallelism is provided by
// github.com/sourcegraph/conc/pool, replacing benchflow's hand-rolled
// channel/WaitGroup worker pool with a panic-safe pooled equivalent.
package llmpool
