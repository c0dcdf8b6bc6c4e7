// Package orchestrator owns a benchmark run end to end: it
// computes the task-set hash, wires the rate limiter (A), compile queue
// (B), and LLM work pool (C), fans one Task Executor (D) out per
// (task, variant) pair pipelined across tasks, aggregates per-task
// comparisons (F) as each task finishes, and propagates cancellation.
// Fan-out is grounded on benchflow's cmd/run.go wiring
// (load -> executor.ExecuteBatch -> summarize), generalized from one flat
// batch into two nested levels (tasks, then variants within a task) so
// that a task's comparison is available the moment its last variant
// finishes, without waiting on the rest of the run.
package orchestrator
