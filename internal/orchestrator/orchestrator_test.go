package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/llmpool"
	"github.com/jpequegn/benchflow-eval/internal/model"
)

// fixedMaterializer hands out deterministic, non-existent directory names so
// tests can drive container.MockProvider's default (always-success) outcome
// without touching the real filesystem.
type fixedMaterializer struct {
	mu sync.Mutex
	n  int
}

func (f *fixedMaterializer) Materialize(task model.TaskManifest, code string) (string, func(), error) {
	f.mu.Lock()
	f.n++
	dir := fmt.Sprintf("%s-%d", task.ID, f.n)
	f.mu.Unlock()
	return dir, func() {}, nil
}

func newFixture(t *testing.T, cfg Config) (*Orchestrator, *llmadapter.MockAdapter, *container.MockProvider) {
	t.Helper()
	adapter := llmadapter.NewMockAdapter("mock")
	registry := llmpool.NewAdapterRegistry()
	registry.Register("mock", adapter)
	provider := container.NewMockProvider()
	orch := New(registry, provider, &fixedMaterializer{}, cfg)
	t.Cleanup(orch.Close)
	return orch, adapter, provider
}

func variant(id string) model.ModelVariant {
	return model.ModelVariant{VariantID: id, Provider: "mock", Model: "m"}
}

func TestRun_EmptyTaskSet(t *testing.T) {
	orch, _, _ := newFixture(t, Config{})
	result, err := orch.Run(context.Background(), "run1", nil, []model.ModelVariant{variant("V1")}, []byte("harness"))
	require.NoError(t, err)
	assert.Empty(t, result.Results)
	assert.NotEmpty(t, result.TaskSetHash)
}

func TestRun_SingleTaskAllVariantsPass(t *testing.T) {
	orch, _, _ := newFixture(t, Config{GlobalConcurrency: 4, ProgressInterval: time.Hour})
	tasks := []model.TaskManifest{{ID: "T1", GeneratePrompt: "gen T1", AttemptLimit: 1}}
	variants := []model.ModelVariant{variant("V1"), variant("V2")}

	result, err := orch.Run(context.Background(), "run1", tasks, variants, []byte("h"))
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	require.Len(t, result.Comparisons, 1)
	assert.Equal(t, "T1", result.Comparisons[0].TaskID)
	assert.ElementsMatch(t, []string{"V1", "V2"}, result.Comparisons[0].PassingModels)
	assert.Equal(t, 100.0, result.Global.OverallPassRate)
}

// trackingMaterializer wraps fixedMaterializer to observe how many
// executions are concurrently past the generate stage (Materialize runs
// right after generation, before the compile queue admission gate).
type trackingMaterializer struct {
	fixedMaterializer
	counter *goroutineCounter
}

func (m *trackingMaterializer) Materialize(task model.TaskManifest, code string) (string, func(), error) {
	m.counter.enter()
	dir, cleanup, err := m.fixedMaterializer.Materialize(task, code)
	return dir, func() { m.counter.leave(); cleanup() }, err
}

func TestRun_GlobalConcurrencyCapHonored(t *testing.T) {
	const concurrencyCap = 3
	adapter := llmadapter.NewMockAdapter("mock")
	registry := llmpool.NewAdapterRegistry()
	registry.Register("mock", adapter)
	provider := container.NewMockProvider()
	counter := &goroutineCounter{}
	orch := New(registry, provider, &trackingMaterializer{counter: counter}, Config{GlobalConcurrency: concurrencyCap, ProgressInterval: time.Hour})
	t.Cleanup(orch.Close)

	var tasks []model.TaskManifest
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("T%d", i)
		prompt := "gen " + id
		adapter.Script(prompt, llmadapter.Script{Code: "procedure Ok()\nend procedure", Delay: 20 * time.Millisecond})
		tasks = append(tasks, model.TaskManifest{ID: id, GeneratePrompt: prompt, AttemptLimit: 1})
	}
	variants := []model.ModelVariant{variant("V0"), variant("V1")}

	result, err := orch.Run(context.Background(), "run1", tasks, variants, []byte("h"))
	require.NoError(t, err)
	assert.Len(t, result.Results, 10)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&counter.max)), concurrencyCap)
}

func TestRun_CriticalErrorAbortsRun(t *testing.T) {
	orch, adapter, provider := newFixture(t, Config{GlobalConcurrency: 2, ProgressInterval: time.Hour})
	adapter.Script("gen T1", llmadapter.Script{Code: "procedure Ok()\nend procedure"})
	provider.SetHealthy(false)

	tasks := []model.TaskManifest{{ID: "T1", GeneratePrompt: "gen T1", AttemptLimit: 1}}
	variants := []model.ModelVariant{variant("V1")}

	_, err := orch.Run(context.Background(), "run1", tasks, variants, []byte("h"))
	require.Error(t, err)
}

func TestRun_CancellationLeavesNoInFlightWork(t *testing.T) {
	orch, _, _ := newFixture(t, Config{GlobalConcurrency: 2, ProgressInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []model.TaskManifest{{ID: "T1", GeneratePrompt: "gen T1", AttemptLimit: 1}}
	variants := []model.ModelVariant{variant("V1")}

	_, _ = orch.Run(ctx, "run1", tasks, variants, []byte("h"))
	assert.Equal(t, 0, orch.limiter.InFlight("mock"))
	assert.Equal(t, 0, orch.queue.Len())
}

func TestRetryLoop_TransientFailureGetsRetriedAndMerged(t *testing.T) {
	orch, adapter, _ := newFixture(t, Config{GlobalConcurrency: 2, ProgressInterval: time.Hour})
	adapter.Script("gen T1", llmadapter.Script{Err: fmt.Errorf("429 too many requests")})

	tasks := []model.TaskManifest{{ID: "T1", GeneratePrompt: "gen T1", AttemptLimit: 1}}
	variants := []model.ModelVariant{variant("V1")}
	tasksByID := map[string]model.TaskManifest{"T1": tasks[0]}
	variantsByID := map[string]model.ModelVariant{"V1": variants[0]}

	result, err := orch.Run(context.Background(), "run1", tasks, variants, []byte("h"))
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.False(t, result.Results[0].Success)

	adapter.Script("gen T1", llmadapter.Script{Code: "procedure Ok()\nend procedure"})

	result, err = orch.RetryLoop(context.Background(), "run1", result, tasksByID, variantsByID, nil)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, "V1", result.Comparisons[0].Winner)
}

// goroutineCounter is a tiny helper for observing max-concurrent callers,
// mirroring the idiom already used in internal/llmpool's own cap test.
type goroutineCounter struct {
	active, max int32
}

func (g *goroutineCounter) enter() {
	n := atomic.AddInt32(&g.active, 1)
	for {
		cur := atomic.LoadInt32(&g.max)
		if n <= cur || atomic.CompareAndSwapInt32(&g.max, cur, n) {
			break
		}
	}
}

func (g *goroutineCounter) leave() { atomic.AddInt32(&g.active, -1) }
