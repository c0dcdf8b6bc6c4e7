// Package model defines the data shared by every stage of a benchmark run:
// task manifests, model variants, attempts, execution results, and the
// per-task comparisons and aggregate statistics derived from them.
package model

import "time"

// TaskManifest is an immutable description of one benchmark task.
type TaskManifest struct {
	ID              string            // stable task identifier
	Description     string            // natural-language description
	GeneratePrompt  string            // prompt text for the generation stage
	RepairPrompt    string            // prompt text for the repair stage
	TestFiles       []TestFile        // opaque test artifacts, paths on disk
	AttemptLimit    int               // typically 1 or 2
	RequiredPatterns []string         // textual patterns the code must contain
	ForbiddenPatterns []string        // textual patterns the code must not contain
	Metadata        map[string]string
}

// TestFile is an opaque, on-disk test artifact referenced by a task.
type TestFile struct {
	Path    string
	Content []byte
}

// ModelVariant is a specific model configuration under evaluation.
type ModelVariant struct {
	VariantID   string // unique name for this configuration
	Provider    string
	Model       string
	Temperature float64
	MaxTokens   int
	Effort      string // "reasoning effort" / "thinking budget" knob, opaque
}

// FailureReason is a machine-readable reason drawn from a closed vocabulary.
type FailureReason string

const (
	ReasonLLMCallFailed          FailureReason = "llm_call_failed"
	ReasonMalformedResponse      FailureReason = "malformed_response"
	ReasonCompilationFailed      FailureReason = "compilation_failed"
	ReasonTestsFailed            FailureReason = "tests_failed"
	ReasonMissingRequiredPattern FailureReason = "missing_required_patterns"
	ReasonForbiddenPattern       FailureReason = "contains_forbidden_patterns"
	ReasonCustomCheckFailed      FailureReason = "custom_check_failed"
	ReasonTimeout                FailureReason = "timeout"
	ReasonRateLimit               FailureReason = "rate_limit"
	ReasonContainerError          FailureReason = "container_error"
	ReasonNetwork                FailureReason = "network"
)

// StageDurations breaks an attempt's wall-clock time down by stage.
type StageDurations struct {
	LLM     time.Duration
	Compile time.Duration
	Test    time.Duration
}

// TokenUsage records token accounting and estimated cost for one LLM call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	EstimatedCost    float64
}

// CompileOutcome is the result of compiling one attempt's generated code.
type CompileOutcome struct {
	Success bool
	Errors  []string
	Warnings []string
}

// TestOutcome is the result of running the task's tests against compiled code.
type TestOutcome struct {
	Passed  int
	Total   int
	Failures []string
}

// Attempt is one generate-compile-test cycle for a (task, variant). Attempts
// are append-only inside their parent TaskExecutionResult.
type Attempt struct {
	Number         int // 1-based
	GeneratedCode  string
	Compile        *CompileOutcome // nil if the LLM call itself failed
	Test           *TestOutcome    // nil if compile did not succeed
	Usage          TokenUsage
	Durations      StageDurations
	FailureReasons []FailureReason
}

// Passed reports whether this attempt fully passed: compile succeeded and
// every test in the outcome passed.
func (a *Attempt) Passed() bool {
	return a.Compile != nil && a.Compile.Success &&
		a.Test != nil && a.Test.Total > 0 && a.Test.Passed == a.Test.Total
}

// RunContext records the variant, manifest, and environment that produced a
// TaskExecutionResult.
type RunContext struct {
	Variant  ModelVariant
	TaskID   string
	RunID    string
	StartedAt time.Time
}

// TaskExecutionResult is the outcome of running one variant on one task.
type TaskExecutionResult struct {
	Context             RunContext
	Attempts            []*Attempt
	Success             bool
	PassedAttemptNumber int // 0 if never passed
	FinalScore          float64 // [0, 100]
	TotalTokens         TokenUsage
	TotalDuration       StageDurations
}

// LastAttempt returns the most recent attempt, or nil if none exist.
func (r *TaskExecutionResult) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return r.Attempts[len(r.Attempts)-1]
}

// TaskComparison joins the per-variant results for a single task.
type TaskComparison struct {
	TaskID        string
	Results       map[string]*TaskExecutionResult // keyed by VariantID
	Winner        string                           // VariantID, "" if tied/none passed
	PassingModels []string                         // stable input order
	FailingModels []string
	RankingVector []string // VariantID ranked best to worst
}

// ModelStats is per-variant aggregate statistics across all tasks in a run.
type ModelStats struct {
	VariantID        string
	TasksPassed      int
	TasksFailed      int
	PassedOnAttempt  map[int]int // attempt number -> count of tasks first-passed there
	AvgScore         float64
	TotalTokens      TokenUsage
	TotalCost        float64
	AvgAttempts      float64
}

// TaskStats is per-task aggregate statistics across all variants.
type TaskStats struct {
	TaskID       string
	VariantsPassed int
	BestScore    float64
	AvgScore     float64
}

// GlobalStats summarizes an entire run.
type GlobalStats struct {
	OverallPassRate float64
	TotalTokens     TokenUsage
	TotalCost       float64
	TotalDurations  StageDurations
}
