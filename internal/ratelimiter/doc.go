// Package ratelimiter provides per-provider admission control for the LLM
// work pool: a bounded concurrency cap combined with a requests-per-minute
// token bucket, both keyed by provider name.
//
// Acquisition is FIFO among waiters of the same provider and cancellable via
// context; cancellation never leaves counters decremented.
package ratelimiter
