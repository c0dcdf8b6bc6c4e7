package compilequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpequegn/benchflow-eval/internal/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_CompileAndTestSucceed(t *testing.T) {
	provider := container.NewMockProvider()
	provider.Script("proj", container.Outcome{
		Compile: &container.CompileResult{Success: true, ArtifactPath: "proj"},
		Test:    &container.TestResult{TotalTests: 3, PassedTests: 3},
	})
	q := New(provider, "box", 0)
	defer q.Close()

	out, err := q.Submit(context.Background(), Job{TaskID: "t1", VariantID: "v1", ProjectDir: "proj"})
	require.NoError(t, err)
	assert.True(t, out.Compile.Success)
	assert.Equal(t, 3, out.Test.PassedTests)
}

func TestSubmit_CompileFailsSkipsTests(t *testing.T) {
	provider := container.NewMockProvider()
	provider.Script("proj", container.Outcome{
		Compile: &container.CompileResult{Success: false, Errors: []string{"syntax error at line 3"}},
	})
	q := New(provider, "box", 0)
	defer q.Close()

	out, err := q.Submit(context.Background(), Job{TaskID: "t1", VariantID: "v1", ProjectDir: "proj"})
	require.NoError(t, err)
	assert.False(t, out.Compile.Success)
	assert.Nil(t, out.Test)
}

func TestNeverTwoConcurrentCompiles(t *testing.T) {
	provider := &countingProvider{MockProvider: container.NewMockProvider()}
	q := New(provider, "box", 0)
	defer q.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = q.Submit(context.Background(), Job{TaskID: "t", VariantID: "v", ProjectDir: "p"})
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, provider.maxConcurrent(), int32(1))
	assert.Equal(t, int32(20), atomic.LoadInt32(&provider.calls))
}

type countingProvider struct {
	*container.MockProvider
	calls   int32
	active  int32
	maxSeen int32
	mu      sync.Mutex
}

func (p *countingProvider) Compile(ctx context.Context, name, dir string) (*container.CompileResult, error) {
	atomic.AddInt32(&p.calls, 1)
	cur := atomic.AddInt32(&p.active, 1)
	p.mu.Lock()
	if cur > p.maxSeen {
		p.maxSeen = cur
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&p.active, -1)
	return &container.CompileResult{Success: true}, nil
}

func (p *countingProvider) maxConcurrent() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxSeen
}

func TestQueueFullError_WithDeadline(t *testing.T) {
	provider := container.NewMockProvider()
	blockCompile := make(chan struct{})
	provider.Script("p0", container.Outcome{Compile: &container.CompileResult{Success: true}})

	q := New(&blockingProvider{MockProvider: provider, block: blockCompile}, "box", 1)
	defer func() {
		close(blockCompile)
		q.Close()
	}()

	go func() {
		_, _ = q.Submit(context.Background(), Job{TaskID: "t0", VariantID: "v0", ProjectDir: "p0"})
	}()
	time.Sleep(20 * time.Millisecond) // let the first job start running, freeing its slot... so fill again

	// occupy the only slot with a job that will sit in the heap
	go func() {
		_, _ = q.Submit(context.Background(), Job{TaskID: "t1", VariantID: "v1", ProjectDir: "p1", Deadline: time.Now().Add(time.Hour)})
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := q.Submit(context.Background(), Job{
		TaskID: "t2", VariantID: "v2", ProjectDir: "p2",
		Deadline: time.Now().Add(30 * time.Millisecond),
	})
	var qfe *QueueFullError
	assert.True(t, errors.As(err, &qfe))
}

type blockingProvider struct {
	*container.MockProvider
	block chan struct{}
}

func (p *blockingProvider) Compile(ctx context.Context, name, dir string) (*container.CompileResult, error) {
	<-p.block
	return &container.CompileResult{Success: true}, nil
}

func TestCriticalErrorFailsFastAfterContainerLost(t *testing.T) {
	provider := container.NewMockProvider()
	provider.SetHealthy(false)
	q := New(provider, "box", 0)
	defer q.Close()

	_, err := q.Submit(context.Background(), Job{TaskID: "t1", VariantID: "v1", ProjectDir: "p"})
	var ce *CriticalError
	require.True(t, errors.As(err, &ce))

	_, err = q.Submit(context.Background(), Job{TaskID: "t2", VariantID: "v2", ProjectDir: "p"})
	assert.True(t, errors.As(err, &ce))
}

func TestPriorityFloatsRepairAttemptsAhead(t *testing.T) {
	provider := container.NewMockProvider()
	blockFirst := make(chan struct{})
	order := []string{}
	var mu sync.Mutex

	p := &orderTrackingProvider{MockProvider: provider, block: blockFirst, order: &order, mu: &mu}
	q := New(p, "box", 0)
	defer func() {
		close(blockFirst)
		q.Close()
	}()

	go func() {
		_, _ = q.Submit(context.Background(), Job{TaskID: "blocker", VariantID: "v", ProjectDir: "blocker", Priority: 0})
	}()
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = q.Submit(context.Background(), Job{TaskID: "fresh", VariantID: "v", ProjectDir: "fresh", Priority: 1})
	}()
	go func() {
		defer wg.Done()
		_, _ = q.Submit(context.Background(), Job{TaskID: "repair", VariantID: "v", ProjectDir: "repair", Priority: 2})
	}()
	time.Sleep(20 * time.Millisecond)

	close(blockFirst)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, "repair", order[0])
	assert.Equal(t, "fresh", order[1])
}

type orderTrackingProvider struct {
	*container.MockProvider
	block chan struct{}
	order *[]string
	mu    *sync.Mutex
	first bool
}

func (p *orderTrackingProvider) Compile(ctx context.Context, name, dir string) (*container.CompileResult, error) {
	if dir == "blocker" {
		<-p.block
		return &container.CompileResult{Success: true}, nil
	}
	p.mu.Lock()
	*p.order = append(*p.order, dir)
	p.mu.Unlock()
	return &container.CompileResult{Success: true}, nil
}
