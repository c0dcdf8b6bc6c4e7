// Package eventstream publishes an ordered lifecycle of benchmark events to
// subscribers. Events for a single (taskID, variantID) pair are delivered
// in causal order; across pairs there is no global ordering, and
// subscribers must tolerate interleaving.
//
// The bus never drops events: a slow subscriber briefly blocks the
// publisher. Subscribers that want to be non-blocking must buffer
// internally; the same rule applies to streamed LLM chunks.
package eventstream
