package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	concpool "github.com/sourcegraph/conc/pool"

	"github.com/jpequegn/benchflow-eval/internal/aggregator"
	"github.com/jpequegn/benchflow-eval/internal/compilequeue"
	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/jpequegn/benchflow-eval/internal/eventstream"
	"github.com/jpequegn/benchflow-eval/internal/llmpool"
	"github.com/jpequegn/benchflow-eval/internal/model"
	"github.com/jpequegn/benchflow-eval/internal/ratelimiter"
	"github.com/jpequegn/benchflow-eval/internal/taskexec"
	"github.com/jpequegn/benchflow-eval/internal/taskhash"
)

// Orchestrator owns one benchmark run: it wires (A)/(B)/(C),
// fans Task Executors out across tasks and variants, and aggregates results
// as each task completes.
type Orchestrator struct {
	limiter      *ratelimiter.Limiter
	pool         *llmpool.Pool
	queue        *compilequeue.Queue
	provider     container.Provider
	materializer taskexec.Materializer
	bus          *eventstream.Bus
	cfg          Config
}

// New wires a fresh Orchestrator around the given external collaborators.
// It does not call provider.Setup; the caller brings the container up
// (or lets an earlier run leave it up) before calling Run.
func New(registry *llmpool.AdapterRegistry, provider container.Provider, materializer taskexec.Materializer, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	limiter := ratelimiter.New(cfg.ProviderLimits)
	pool := llmpool.New(llmpool.Config{GlobalConcurrency: cfg.GlobalConcurrency}, registry, limiter)
	queue := compilequeue.New(provider, cfg.Container.Name, cfg.CompileQueueDepth)
	return &Orchestrator{
		limiter:      limiter,
		pool:         pool,
		queue:        queue,
		provider:     provider,
		materializer: materializer,
		bus:          eventstream.NewBus(),
		cfg:          cfg,
	}
}

// Subscribe registers a new event subscriber.
func (o *Orchestrator) Subscribe(buffer int) *eventstream.Subscription {
	return o.bus.Subscribe(buffer)
}

// Close releases the compile queue's consumer and closes the event bus.
// Call once, after Run (and any retries) return.
func (o *Orchestrator) Close() {
	o.queue.Close()
	o.bus.Close()
}

// Run drives tasks x variants to completion: expands the cartesian
// product into Task Executor runs, pipelines per-task aggregation, and
// returns once every (task, variant) pair has reached a terminal state or
// ctx is canceled or a CriticalError aborts the run.
func (o *Orchestrator) Run(ctx context.Context, runID string, tasks []model.TaskManifest, variants []model.ModelVariant, harnessManifest []byte) (*RunResult, error) {
	hash := taskhash.ComputeTaskSet(tasks, harnessManifest)
	if len(tasks) == 0 {
		return &RunResult{TaskSetHash: hash, RunID: runID, Global: &model.GlobalStats{}}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	variantPool := concpool.New().WithMaxGoroutines(o.cfg.GlobalConcurrency)

	var resultsMu sync.Mutex
	var allResults []*model.TaskExecutionResult
	var comparisons []*model.TaskComparison

	var criticalMu sync.Mutex
	var firstCritical error

	total := len(tasks)
	var completed int
	var completedMu sync.Mutex
	start := time.Now()

	progressDone := make(chan struct{})
	if o.cfg.ProgressInterval > 0 {
		go o.publishProgress(runCtx, progressDone, variants, total, &completed, &completedMu, start)
	}

	var taskWG sync.WaitGroup
	for _, task := range tasks {
		task := task
		taskWG.Add(1)
		go func() {
			defer taskWG.Done()
			comp, results := o.runTask(runCtx, runID, task, variants, variantPool, &criticalMu, &firstCritical, cancel)

			resultsMu.Lock()
			for _, r := range results {
				allResults = append(allResults, r)
			}
			comparisons = append(comparisons, comp)
			resultsMu.Unlock()

			completedMu.Lock()
			completed++
			completedMu.Unlock()
		}()
	}

	taskWG.Wait()
	variantPool.Wait()
	close(progressDone)

	criticalMu.Lock()
	critical := firstCritical
	criticalMu.Unlock()
	if critical != nil {
		return nil, critical
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &RunResult{
		TaskSetHash: hash,
		RunID:       runID,
		Results:     allResults,
		Comparisons: comparisons,
		ModelStats:  aggregator.PerModelStats(allResults),
		Global:      aggregator.GlobalStats(allResults),
	}, nil
}

// runTask fans one task's variants out onto the shared variantPool and
// waits for all of them, building the task's comparison once every variant
// reaches a terminal state. It never blocks other tasks' progress.
func (o *Orchestrator) runTask(ctx context.Context, runID string, task model.TaskManifest, variants []model.ModelVariant, variantPool *concpool.Pool, criticalMu *sync.Mutex, firstCritical *error, cancel context.CancelFunc) (*model.TaskComparison, []*model.TaskExecutionResult) {
	order := make([]string, 0, len(variants))
	for _, v := range variants {
		order = append(order, v.VariantID)
	}

	resultByVariant := make(map[string]*model.TaskExecutionResult, len(variants))
	var mu sync.Mutex
	var wg sync.WaitGroup

	o.publish(eventstream.Event{Kind: eventstream.KindTaskStarted, TaskID: task.ID, Variants: order})

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
			res, err := exec.Run(ctx, task, variant, runCtx)
			if err != nil {
				var critical *compilequeue.CriticalError
				if errors.As(err, &critical) {
					criticalMu.Lock()
					if *firstCritical == nil {
						*firstCritical = err
					}
					criticalMu.Unlock()
					cancel()
				}
				if res == nil {
					res = &model.TaskExecutionResult{Context: runCtx}
				}
			}
			mu.Lock()
			resultByVariant[variant.VariantID] = res
			mu.Unlock()
		})
	}
	wg.Wait()

	comp := aggregator.BuildComparison(task.ID, order, resultByVariant)
	o.publish(eventstream.Event{Kind: eventstream.KindTaskCompleted, TaskID: task.ID, Comparison: comp})

	results := make([]*model.TaskExecutionResult, 0, len(order))
	for _, v := range order {
		if r := resultByVariant[v]; r != nil {
			results = append(results, r)
		}
	}
	return comp, results
}

// publishProgress periodically emits a progress event until done is closed.
func (o *Orchestrator) publishProgress(ctx context.Context, done <-chan struct{}, variants []model.ModelVariant, total int, completed *int, completedMu *sync.Mutex, start time.Time) {
	ticker := time.NewTicker(o.cfg.ProgressInterval)
	defer ticker.Stop()

	providers := make(map[string]struct{})
	for _, v := range variants {
		providers[v.Provider] = struct{}{}
	}

	for {
		select {
		case <-ticker.C:
			completedMu.Lock()
			c := *completed
			completedMu.Unlock()

			active := 0
			for p := range providers {
				active += o.limiter.InFlight(p)
			}

			var eta int64
			if c > 0 {
				elapsed := time.Since(start)
				remaining := total - c
				eta = int64(elapsed/time.Duration(c)) * int64(remaining) / int64(time.Millisecond)
			}

			o.publish(eventstream.Event{
				Kind:               eventstream.KindProgress,
				Completed:          c,
				Total:              total,
				ActiveLLMCalls:     active,
				CompileQueueLength: o.queue.Len(),
				ETAMillis:          eta,
			})
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) publish(event eventstream.Event) {
	stamped := eventstream.New(event.Kind)
	event.ID = stamped.ID
	event.Timestamp = stamped.Timestamp
	o.bus.Publish(event)
}
