package taskexec

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpequegn/benchflow-eval/internal/compilequeue"
	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/jpequegn/benchflow-eval/internal/eventstream"
	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/llmpool"
	"github.com/jpequegn/benchflow-eval/internal/model"
	"github.com/jpequegn/benchflow-eval/internal/ratelimiter"
)

// fixedMaterializer hands out deterministic, non-existent directory names so
// tests can script container.MockProvider outcomes before calling Run,
// without touching the real filesystem.
type fixedMaterializer struct {
	mu sync.Mutex
	n  int
}

func (f *fixedMaterializer) Materialize(task model.TaskManifest, code string) (string, func(), error) {
	f.mu.Lock()
	f.n++
	dir := fmt.Sprintf("%s-attempt-%d", task.ID, f.n)
	f.mu.Unlock()
	return dir, func() {}, nil
}

func newExecutorFixture(t *testing.T) (*Executor, *llmadapter.MockAdapter, *container.MockProvider, *fixedMaterializer) {
	t.Helper()
	adapter := llmadapter.NewMockAdapter("mock")
	registry := llmpool.NewAdapterRegistry()
	registry.Register("mock", adapter)
	limiter := ratelimiter.New(nil)
	pool := llmpool.New(llmpool.Config{}, registry, limiter)

	provider := container.NewMockProvider()
	queue := compilequeue.New(provider, "benchflow-container", 4)
	t.Cleanup(queue.Close)

	mat := &fixedMaterializer{}
	exec := New(pool, queue, mat, nil, Config{})
	return exec, adapter, provider, mat
}

func TestRun_SinglePass(t *testing.T) {
	exec, adapter, _, _ := newExecutorFixture(t)
	task := model.TaskManifest{
		ID:               "T1",
		GeneratePrompt:   "generate T1",
		AttemptLimit:     1,
		RequiredPatterns: []string{"procedure Foo"},
	}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T1", llmadapter.Script{Code: "procedure Foo()\nend procedure"})

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T1", Variant: variant})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.PassedAttemptNumber)
	assert.Equal(t, float64(100), result.FinalScore)
	require.Len(t, result.Attempts, 1)
	assert.Empty(t, result.Attempts[0].FailureReasons)
}

func TestRun_CompileFailsNoRepairBudget(t *testing.T) {
	exec, adapter, provider, mat := newExecutorFixture(t)
	task := model.TaskManifest{ID: "T2", GeneratePrompt: "generate T2", AttemptLimit: 1}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T2", llmadapter.Script{Code: "procedure Broken("})

	provider.Script("T2-attempt-1", container.Outcome{
		Compile: &container.CompileResult{Success: false, Errors: []string{"syntax error at line 1"}},
	})
	_ = mat

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T2", Variant: variant})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.PassedAttemptNumber)
	assert.Equal(t, float64(0), result.FinalScore)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].FailureReasons, model.ReasonCompilationFailed)
}

func TestRun_RepairSucceedsOnSecondAttempt(t *testing.T) {
	exec, adapter, provider, _ := newExecutorFixture(t)
	task := model.TaskManifest{ID: "T3", GeneratePrompt: "generate T3", RepairPrompt: "repair T3", AttemptLimit: 2}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}

	adapter.Script("generate T3", llmadapter.Script{Code: "procedure Broken("})
	adapter.Script("repair T3", llmadapter.Script{Code: "procedure Fixed()\nend procedure"})

	provider.Script("T3-attempt-1", container.Outcome{
		Compile: &container.CompileResult{Success: false, Errors: []string{"syntax error at line 3"}},
	})
	provider.Script("T3-attempt-2", container.Outcome{
		Compile: &container.CompileResult{Success: true, ArtifactPath: "T3-attempt-2"},
		Test:    &container.TestResult{TotalTests: 2, PassedTests: 2},
	})

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T3", Variant: variant})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.PassedAttemptNumber)
	require.Len(t, result.Attempts, 2)
	assert.Contains(t, result.Attempts[0].FailureReasons, model.ReasonCompilationFailed)
	assert.Empty(t, result.Attempts[1].FailureReasons)
}

func TestRun_PartialCreditWhenNoAttemptPasses(t *testing.T) {
	exec, adapter, provider, _ := newExecutorFixture(t)
	task := model.TaskManifest{ID: "T4", GeneratePrompt: "generate T4", AttemptLimit: 1}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T4", llmadapter.Script{Code: "procedure Partial()\nend procedure"})

	provider.Script("T4-attempt-1", container.Outcome{
		Compile: &container.CompileResult{Success: true, ArtifactPath: "T4-attempt-1"},
		Test:    &container.TestResult{TotalTests: 4, PassedTests: 3, Results: []string{"case4 failed"}},
	})

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T4", Variant: variant})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, float64(75), result.FinalScore)
	assert.Contains(t, result.Attempts[0].FailureReasons, model.ReasonTestsFailed)
}

func TestRun_LLMCallFailedIsTerminal(t *testing.T) {
	exec, adapter, _, _ := newExecutorFixture(t)
	task := model.TaskManifest{ID: "T5", GeneratePrompt: "generate T5", AttemptLimit: 2}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T5", llmadapter.Script{Err: assert.AnError})

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T5", Variant: variant})

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].FailureReasons, model.ReasonLLMCallFailed)
}

func TestRun_ServerErrorClassifiedAsNetwork(t *testing.T) {
	// ServerError is retryable at the pool level, so this uses a short
	// backoff/retry budget instead of newExecutorFixture's defaults to keep
	// the exhausted-retries path fast.
	adapter := llmadapter.NewMockAdapter("mock")
	registry := llmpool.NewAdapterRegistry()
	registry.Register("mock", adapter)
	limiter := ratelimiter.New(nil)
	pool := llmpool.New(llmpool.Config{MaxRetries: 1, BaseBackoff: time.Millisecond}, registry, limiter)

	provider := container.NewMockProvider()
	queue := compilequeue.New(provider, "benchflow-container", 4)
	t.Cleanup(queue.Close)

	exec := New(pool, queue, &fixedMaterializer{}, nil, Config{})

	task := model.TaskManifest{ID: "T6", GeneratePrompt: "generate T6", AttemptLimit: 1}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T6", llmadapter.Script{Err: &llmadapter.ServerError{Provider: "mock", StatusCode: 503}})

	result, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T6", Variant: variant})

	require.NoError(t, err)
	assert.False(t, result.Success)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].FailureReasons, model.ReasonNetwork)
}

func TestRun_PublishesLifecycleEvents(t *testing.T) {
	adapter := llmadapter.NewMockAdapter("mock")
	registry := llmpool.NewAdapterRegistry()
	registry.Register("mock", adapter)
	limiter := ratelimiter.New(nil)
	pool := llmpool.New(llmpool.Config{}, registry, limiter)
	provider := container.NewMockProvider()
	queue := compilequeue.New(provider, "c", 4)
	t.Cleanup(queue.Close)

	bus := eventstream.NewBus()
	sub := bus.Subscribe(32)
	exec := New(pool, queue, &fixedMaterializer{}, bus, Config{})

	task := model.TaskManifest{ID: "T6", GeneratePrompt: "generate T6", AttemptLimit: 1}
	variant := model.ModelVariant{VariantID: "V1", Provider: "mock", Model: "m"}
	adapter.Script("generate T6", llmadapter.Script{Code: "procedure Ok()\nend procedure"})

	_, err := exec.Run(context.Background(), task, variant, model.RunContext{TaskID: "T6", Variant: variant})
	require.NoError(t, err)
	sub.Close()

	var kinds []eventstream.Kind
	for ev := range sub.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, eventstream.KindTaskStarted)
	assert.Contains(t, kinds, eventstream.KindLLMStarted)
	assert.Contains(t, kinds, eventstream.KindLLMCompleted)
	assert.Contains(t, kinds, eventstream.KindCompileCompleted)
	assert.Contains(t, kinds, eventstream.KindResult)
}
