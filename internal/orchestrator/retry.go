package orchestrator

import (
	"context"
	"sync"
	"time"

	concpool "github.com/sourcegraph/conc/pool"

	"github.com/jpequegn/benchflow-eval/internal/aggregator"
	"github.com/jpequegn/benchflow-eval/internal/eventstream"
	"github.com/jpequegn/benchflow-eval/internal/model"
	"github.com/jpequegn/benchflow-eval/internal/retryclassifier"
	"github.com/jpequegn/benchflow-eval/internal/taskexec"
)

// RetryCandidate names one (task, variant) pair whose last result failed for
// a transient reason and is therefore eligible for an automatic re-run.
type RetryCandidate struct {
	TaskID    string
	VariantID string
}

// RetryLoop repeatedly re-runs transient failures in result until none
// remain, confirm declines, or ctx is canceled. confirm is asked once per
// round with the pending candidates; a nil confirm always proceeds. Results,
// comparisons, and aggregate stats are updated in place on result and it is
// returned back to the caller (retry never discards the unaffected results).
func (o *Orchestrator) RetryLoop(ctx context.Context, runID string, result *RunResult, tasksByID map[string]model.TaskManifest, variantsByID map[string]model.ModelVariant, confirm func([]RetryCandidate) bool) (*RunResult, error) {
	for {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		candidates := transientCandidates(result.Results)
		if len(candidates) == 0 {
			return result, nil
		}
		if confirm != nil && !confirm(candidates) {
			return result, nil
		}

		byTask := make(map[string][]model.ModelVariant)
		for _, c := range candidates {
			byTask[c.TaskID] = append(byTask[c.TaskID], variantsByID[c.VariantID])
		}

		updated := o.runCandidates(ctx, runID, byTask, tasksByID)
		mergeResults(result, updated)

		for taskID, variants := range byTask {
			order := unionOrder(taskID, result, variants)
			taskResults := resultsForTask(result.Results, taskID)
			comp := aggregator.BuildComparison(taskID, order, taskResults)
			replaceComparison(result, comp)
			o.publish(eventstream.Event{Kind: eventstream.KindTaskCompleted, TaskID: taskID, Comparison: comp})
		}

		result.ModelStats = aggregator.PerModelStats(result.Results)
		result.Global = aggregator.GlobalStats(result.Results)
	}
}

func transientCandidates(results []*model.TaskExecutionResult) []RetryCandidate {
	var out []RetryCandidate
	for _, r := range results {
		if retryclassifier.IsTransient(r) {
			out = append(out, RetryCandidate{TaskID: r.Context.TaskID, VariantID: r.Context.Variant.VariantID})
		}
	}
	return out
}

// runCandidates re-executes every (task, variant) pair named by byTask,
// bounded by the same global concurrency cap as a normal run, and returns
// the fresh results keyed by "taskID|variantID".
func (o *Orchestrator) runCandidates(ctx context.Context, runID string, byTask map[string][]model.ModelVariant, tasksByID map[string]model.TaskManifest) map[string]*model.TaskExecutionResult {
	variantPool := concpool.New().WithMaxGoroutines(o.cfg.GlobalConcurrency)

	var mu sync.Mutex
	updated := make(map[string]*model.TaskExecutionResult)

	var wg sync.WaitGroup
	for taskID, variants := range byTask {
		task := tasksByID[taskID]
		for _, variant := range variants {
			variant := variant
			wg.Add(1)
			variantPool.Go(func() {
				defer wg.Done()
				exec := taskexec.New(o.pool, o.queue, o.materializer, o.bus, taskexec.Config{
					DefaultAttemptLimit: o.cfg.AttemptLimit,
					CompileDeadline:     o.cfg.CompileDeadline,
				})
				runCtx := model.RunContext{Variant: variant, TaskID: task.ID, RunID: runID, StartedAt: time.Now()}
				res, _ := exec.Run(ctx, task, variant, runCtx)
				if res == nil {
					res = &model.TaskExecutionResult{Context: runCtx}
				}
				mu.Lock()
				updated[task.ID+"|"+variant.VariantID] = res
				mu.Unlock()
			})
		}
	}
	wg.Wait()
	variantPool.Wait()
	return updated
}

// mergeResults replaces each retried result in place, keeping every result
// that was not a retry candidate untouched.
func mergeResults(result *RunResult, updated map[string]*model.TaskExecutionResult) {
	for i, r := range result.Results {
		key := r.Context.TaskID + "|" + r.Context.Variant.VariantID
		if fresh, ok := updated[key]; ok {
			result.Results[i] = fresh
		}
	}
}

func resultsForTask(results []*model.TaskExecutionResult, taskID string) map[string]*model.TaskExecutionResult {
	out := make(map[string]*model.TaskExecutionResult)
	for _, r := range results {
		if r.Context.TaskID == taskID {
			out[r.Context.Variant.VariantID] = r
		}
	}
	return out
}

// unionOrder reconstructs the original per-task variant order from the
// task's existing comparison (PassingModels ++ FailingModels covers every
// variant that had a result), falling back to the retried variants'
// registration order if no prior comparison is found.
func unionOrder(taskID string, result *RunResult, retried []model.ModelVariant) []string {
	for _, comp := range result.Comparisons {
		if comp.TaskID == taskID {
			order := make([]string, 0, len(comp.PassingModels)+len(comp.FailingModels))
			order = append(order, comp.PassingModels...)
			order = append(order, comp.FailingModels...)
			return order
		}
	}
	order := make([]string, 0, len(retried))
	for _, v := range retried {
		order = append(order, v.VariantID)
	}
	return order
}

func replaceComparison(result *RunResult, comp *model.TaskComparison) {
	for i, c := range result.Comparisons {
		if c.TaskID == comp.TaskID {
			result.Comparisons[i] = comp
			return
		}
	}
	result.Comparisons = append(result.Comparisons, comp)
}
