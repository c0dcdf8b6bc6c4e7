// Package aggregator computes statistics over a finished benchmark run:
// per-model and per-task aggregates, per-task winner
// selection, and pass@k across multiple runs of the same task set. Every
// exported function is pure over its inputs, grounded on benchflow's
// DefaultAggregator (stats-over-a-result-set, no hidden state).
package aggregator
