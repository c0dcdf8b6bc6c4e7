// Package taskexec drives the per-(task, variant) generate-compile-test-
// repair state machine: Idle -> GeneratingK -> CompilingK ->
// TestingK -> RepairingK -> Done(success|failed). Each transition is grounded
// on benchflow's executor.executeWithRetry attempt loop, generalized from
// a single-stage retry into a multi-stage pipeline that submits LLM calls
// through the work pool (C) and compile/test work through the compile
// queue (B), publishing lifecycle events (H) as it goes.
package taskexec
