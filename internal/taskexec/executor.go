package taskexec

import (
	"context"
	"errors"
	"time"

	"github.com/jpequegn/benchflow-eval/internal/codecheck"
	"github.com/jpequegn/benchflow-eval/internal/compilequeue"
	"github.com/jpequegn/benchflow-eval/internal/eventstream"
	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/llmpool"
	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Config bounds a Executor's behavior where a task's own manifest is silent.
type Config struct {
	DefaultAttemptLimit int           // used when task.AttemptLimit <= 0
	CompileDeadline     time.Duration // 0 means no per-job deadline
}

func (c Config) withDefaults() Config {
	if c.DefaultAttemptLimit <= 0 {
		c.DefaultAttemptLimit = 1
	}
	return c
}

// Executor drives the generate-compile-test-repair state machine for one
// (task, variant) pair.
type Executor struct {
	pool         *llmpool.Pool
	queue        *compilequeue.Queue
	materializer Materializer
	checker      *codecheck.PatternChecker
	bus          *eventstream.Bus
	cfg          Config
}

// New creates an Executor wired to the shared work pool, compile queue, and
// event bus for one run.
func New(pool *llmpool.Pool, queue *compilequeue.Queue, materializer Materializer, bus *eventstream.Bus, cfg Config) *Executor {
	return &Executor{
		pool:         pool,
		queue:        queue,
		materializer: materializer,
		checker:      codecheck.NewPatternChecker(),
		bus:          bus,
		cfg:          cfg.withDefaults(),
	}
}

// Run drives task/variant through Idle -> GeneratingK -> CompilingK ->
// TestingK -> RepairingK -> Done(success|failed), returning the finished
// result. A non-nil error means the run-level cancel signal fired or the
// compile queue reported a CriticalError; either aborts the pipeline for
// this (task, variant) immediately, mid-attempt.
func (e *Executor) Run(ctx context.Context, task model.TaskManifest, variant model.ModelVariant, runCtx model.RunContext) (*model.TaskExecutionResult, error) {
	limit := task.AttemptLimit
	if limit <= 0 {
		limit = e.cfg.DefaultAttemptLimit
	}

	result := &model.TaskExecutionResult{Context: runCtx}
	e.publish(eventstream.Event{Kind: eventstream.KindTaskStarted, TaskID: task.ID, Variants: []string{variant.VariantID}})

	var priorCode string
	var priorErrors []string

	for k := 1; k <= limit; k++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		attempt := &model.Attempt{Number: k}
		resp, llmErr := e.generate(ctx, task, variant, k, priorCode, priorErrors, attempt)
		if llmErr != nil {
			attempt.FailureReasons = []model.FailureReason{classifyLLMErr(llmErr)}
			result.Attempts = append(result.Attempts, attempt)
			e.publishError(task.ID, variant.VariantID, llmErr)
			if ctx.Err() != nil {
				finalize(result)
				return result, ctx.Err()
			}
			break
		}

		attempt.GeneratedCode = resp.Code
		attempt.Usage = resp.Usage

		if resp.Code == "" {
			attempt.FailureReasons = []model.FailureReason{model.ReasonMalformedResponse}
			result.Attempts = append(result.Attempts, attempt)
			break
		}

		outcome, compileErr := e.compileAndTest(ctx, task, variant, k, attempt)
		if compileErr != nil {
			var critical *compilequeue.CriticalError
			if errors.As(compileErr, &critical) {
				result.Attempts = append(result.Attempts, attempt)
				e.publishError(task.ID, variant.VariantID, compileErr)
				finalize(result)
				return result, compileErr
			}
			if ctx.Err() != nil {
				result.Attempts = append(result.Attempts, attempt)
				finalize(result)
				return result, ctx.Err()
			}
			attempt.FailureReasons = append(attempt.FailureReasons, model.ReasonTimeout)
			result.Attempts = append(result.Attempts, attempt)
			e.publishError(task.ID, variant.VariantID, compileErr)
			break
		}

		pr := e.checker.Check(task, attempt.GeneratedCode)
		attempt.FailureReasons = append(attempt.FailureReasons, pr.FailureReasons()...)

		if !outcome.Compile.Success {
			attempt.FailureReasons = append(attempt.FailureReasons, model.ReasonCompilationFailed)
			result.Attempts = append(result.Attempts, attempt)
			priorCode, priorErrors = attempt.GeneratedCode, outcome.Compile.Errors
			if k < limit {
				continue
			}
			break
		}

		if attempt.Test != nil && !(attempt.Test.Total > 0 && attempt.Test.Passed == attempt.Test.Total) {
			attempt.FailureReasons = append(attempt.FailureReasons, model.ReasonTestsFailed)
		}
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Passed() {
			break
		}

		priorCode = attempt.GeneratedCode
		if attempt.Test != nil {
			priorErrors = attempt.Test.Failures
		}
		if k == limit {
			break
		}
	}

	finalize(result)
	e.publish(eventstream.Event{Kind: eventstream.KindResult, TaskID: task.ID, VariantID: variant.VariantID, Result: result, Success: result.Success})
	return result, nil
}

// generate submits one fresh-generation or repair work item to the LLM pool.
func (e *Executor) generate(ctx context.Context, task model.TaskManifest, variant model.ModelVariant, k int, priorCode string, priorErrors []string, attempt *model.Attempt) (*llmadapter.Response, error) {
	kind := llmpool.KindGenerate
	prompt := task.GeneratePrompt
	if k > 1 {
		kind = llmpool.KindRepair
		prompt = task.RepairPrompt
	}

	e.publish(eventstream.Event{Kind: eventstream.KindLLMStarted, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k})
	start := time.Now()
	res := e.pool.Submit(ctx, llmpool.WorkItem{
		TaskID:       task.ID,
		VariantID:    variant.VariantID,
		Attempt:      k,
		Kind:         kind,
		Variant:      variant,
		Prompt:       prompt,
		OriginalCode: priorCode,
		PriorErrors:  priorErrors,
	})
	attempt.Durations.LLM = time.Since(start)
	e.publish(eventstream.Event{Kind: eventstream.KindLLMCompleted, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k, Success: res.Err == nil})
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Response, nil
}

// compileAndTest materializes the attempt's generated code and submits it to
// the shared compile queue, folding the result onto attempt.
func (e *Executor) compileAndTest(ctx context.Context, task model.TaskManifest, variant model.ModelVariant, k int, attempt *model.Attempt) (*compilequeue.Outcome, error) {
	dir, cleanup, err := e.materializer.Materialize(task, attempt.GeneratedCode)
	if err != nil {
		return nil, &compilequeue.CriticalError{Cause: err}
	}
	defer cleanup()

	job := compilequeue.Job{TaskID: task.ID, VariantID: variant.VariantID, Code: attempt.GeneratedCode, ProjectDir: dir, Priority: k}
	if e.cfg.CompileDeadline > 0 {
		job.Deadline = time.Now().Add(e.cfg.CompileDeadline)
	}

	e.publish(eventstream.Event{Kind: eventstream.KindCompileQueued, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k})
	start := time.Now()
	e.publish(eventstream.Event{Kind: eventstream.KindCompileStarted, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k})
	outcome, err := e.queue.Submit(ctx, job)
	attempt.Durations.Compile = time.Since(start)
	if err != nil {
		e.publish(eventstream.Event{Kind: eventstream.KindCompileCompleted, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k, Success: false})
		return nil, err
	}

	attempt.Compile = &model.CompileOutcome{Success: outcome.Compile.Success, Errors: outcome.Compile.Errors, Warnings: outcome.Compile.Warnings}
	if outcome.Test != nil {
		attempt.Test = &model.TestOutcome{Passed: outcome.Test.PassedTests, Total: outcome.Test.TotalTests, Failures: outcome.Test.Results}
	}
	e.publish(eventstream.Event{Kind: eventstream.KindCompileCompleted, TaskID: task.ID, VariantID: variant.VariantID, Attempt: k, Success: outcome.Compile.Success})
	return outcome, nil
}

func (e *Executor) publish(event eventstream.Event) {
	if e.bus == nil {
		return
	}
	stamped := eventstream.New(event.Kind)
	event.ID = stamped.ID
	event.Timestamp = stamped.Timestamp
	e.bus.Publish(event)
}

func (e *Executor) publishError(taskID, variantID string, err error) {
	e.publish(eventstream.Event{Kind: eventstream.KindError, TaskID: taskID, VariantID: variantID, Err: err})
}

// classifyLLMErr maps an adapter-level error onto the closed failure-reason
// vocabulary.
func classifyLLMErr(err error) model.FailureReason {
	var rle *llmadapter.RateLimitError
	if errors.As(err, &rle) {
		return model.ReasonRateLimit
	}
	var te *llmadapter.TimeoutError
	if errors.As(err, &te) {
		return model.ReasonTimeout
	}
	var se *llmadapter.ServerError
	if errors.As(err, &se) {
		return model.ReasonNetwork
	}
	return model.ReasonLLMCallFailed
}

// finalize computes result.Success, PassedAttemptNumber, FinalScore, and the
// totals from its attempts.
func finalize(result *model.TaskExecutionResult) {
	result.Success = false
	result.PassedAttemptNumber = 0
	var lastCompiled *model.Attempt

	for _, a := range result.Attempts {
		result.TotalTokens.PromptTokens += a.Usage.PromptTokens
		result.TotalTokens.CompletionTokens += a.Usage.CompletionTokens
		result.TotalTokens.EstimatedCost += a.Usage.EstimatedCost
		result.TotalDuration.LLM += a.Durations.LLM
		result.TotalDuration.Compile += a.Durations.Compile
		result.TotalDuration.Test += a.Durations.Test

		if a.Passed() && result.PassedAttemptNumber == 0 {
			result.PassedAttemptNumber = a.Number
			result.Success = true
		}
		if a.Compile != nil && a.Compile.Success {
			lastCompiled = a
		}
	}

	switch {
	case result.Success:
		result.FinalScore = 100
	case lastCompiled != nil && lastCompiled.Test != nil && lastCompiled.Test.Total > 0:
		result.FinalScore = 100 * float64(lastCompiled.Test.Passed) / float64(lastCompiled.Test.Total)
	default:
		result.FinalScore = 0
	}
}
