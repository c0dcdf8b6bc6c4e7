package orchestrator

import (
	"time"

	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/jpequegn/benchflow-eval/internal/model"
	"github.com/jpequegn/benchflow-eval/internal/ratelimiter"
)

// Config bounds one run's resource usage. Zero values fall back to
// reasonable defaults in New.
type Config struct {
	GlobalConcurrency int                                  // across every (task, variant) pair, all providers combined
	ProviderLimits    map[string]ratelimiter.ProviderLimits // per-provider caps for (A)
	AttemptLimit      int                                   // fallback when a task.AttemptLimit is unset
	CompileDeadline   time.Duration                         // 0 means no per-job deadline
	CompileQueueDepth int                                   // compile queue admission capacity; 0 means unbounded
	Container         container.Config
	ProgressInterval  time.Duration // 0 falls back to 500ms
}

func (c Config) withDefaults() Config {
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = 10
	}
	if c.AttemptLimit <= 0 {
		c.AttemptLimit = 1
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 500 * time.Millisecond
	}
	return c
}

// RunResult is everything a completed run produces: the task-set identity,
// the flat result set, per-task comparisons, and the aggregate statistics
// derived from them.
type RunResult struct {
	TaskSetHash string
	RunID       string
	Results     []*model.TaskExecutionResult
	Comparisons []*model.TaskComparison
	ModelStats  []*model.ModelStats
	Global      *model.GlobalStats
}
