package compilequeue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"

	"github.com/jpequegn/benchflow-eval/internal/container"
)

// pendingJob is a Job waiting in the internal priority heap, plus the
// plumbing needed to deliver its outcome.
type pendingJob struct {
	job  Job
	seq  int // admission order, breaks priority ties FIFO
	done chan result
}

type result struct {
	outcome *Outcome
	err     error
}

// jobHeap orders pendingJob by (Priority desc, seq asc): higher attempt
// numbers float ahead of older fresh work, FIFO within the same priority.
type jobHeap []*pendingJob

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*pendingJob)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Queue is a bounded single-consumer FIFO (priority-ordered), serializing
// compile+test jobs against a shared container. Admission
// is gated by a counting semaphore sized to capacity; the single consumer
// goroutine runs jobs to completion one at a time.
type Queue struct {
	provider container.Provider
	name     string // container name the consumer operates on

	slots chan struct{} // nil means unbounded capacity

	mu       sync.Mutex
	notEmpty *sync.Cond
	heap     jobHeap
	nextSeq  int
	closed   bool
	critical error // once set, every subsequent job fails fast

	wg sync.WaitGroup
}

// New creates a Queue bound to the given container and starts its single
// consumer goroutine. capacity <= 0 means unbounded.
func New(provider container.Provider, containerName string, capacity int) *Queue {
	q := &Queue{provider: provider, name: containerName}
	q.notEmpty = sync.NewCond(&q.mu)
	if capacity > 0 {
		q.slots = make(chan struct{}, capacity)
	}
	q.wg.Add(1)
	go q.consume()
	return q
}

// Capacity returns the configured queue capacity, or 0 if unbounded.
func (q *Queue) Capacity() int { return cap(q.slots) }

// Submit enqueues a job and blocks until it has been compiled (and tested,
// if compile succeeded), the submission's own ctx is canceled, or (when
// job.Deadline is set) the deadline elapses. A deadline elapsing while still
// waiting for admission yields QueueFullError; elapsing after admission but
// before completion yields QueueTimeoutError.
func (q *Queue) Submit(ctx context.Context, job Job) (*Outcome, error) {
	q.mu.Lock()
	closed, critical := q.closed, q.critical
	q.mu.Unlock()
	if closed {
		return nil, errShutdown
	}
	if critical != nil {
		return nil, &CriticalError{Cause: critical}
	}

	jobCtx := ctx
	if !job.Deadline.IsZero() {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithDeadline(ctx, job.Deadline)
		defer cancel()
	}

	if q.slots != nil {
		select {
		case q.slots <- struct{}{}:
		case <-jobCtx.Done():
			if !job.Deadline.IsZero() {
				return nil, &QueueFullError{Capacity: cap(q.slots)}
			}
			return nil, jobCtx.Err()
		}
	}

	pj, err := q.admit(job)
	if err != nil {
		q.releaseSlot()
		return nil, err
	}

	select {
	case r := <-pj.done:
		return r.outcome, r.err
	case <-ctx.Done():
		q.remove(pj)
		return nil, ctx.Err()
	case <-jobCtx.Done():
		q.remove(pj)
		if !job.Deadline.IsZero() {
			return nil, &QueueTimeoutError{TaskID: job.TaskID, VariantID: job.VariantID}
		}
		return nil, jobCtx.Err()
	}
}

func (q *Queue) releaseSlot() {
	if q.slots != nil {
		<-q.slots
	}
}

// admit pushes the job onto the priority heap.
func (q *Queue) admit(job Job) (*pendingJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, errShutdown
	}
	if q.critical != nil {
		return nil, &CriticalError{Cause: q.critical}
	}

	pj := &pendingJob{job: job, seq: q.nextSeq, done: make(chan result, 1)}
	q.nextSeq++
	heap.Push(&q.heap, pj)
	q.notEmpty.Signal()
	return pj, nil
}

// remove drops a not-yet-running job from the heap if it is still pending.
// Cancellation never interrupts a running compile. If the
// job already started running or completed, this is a no-op: the consumer
// released its slot when it dequeued the job.
func (q *Queue) remove(pj *pendingJob) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, cand := range q.heap {
		if cand == pj {
			heap.Remove(&q.heap, i)
			q.releaseSlotLocked()
			return
		}
	}
}

func (q *Queue) releaseSlotLocked() {
	if q.slots != nil {
		select {
		case <-q.slots:
		default:
		}
	}
}

// Len reports the number of jobs currently queued (not counting one
// in-flight in the consumer); used by progress events and property tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Close stops accepting new jobs and waits for the consumer to exit after
// draining any in-flight job. Already-queued, not-yet-run jobs fail with
// errShutdown.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	pending := q.heap
	q.heap = nil
	q.notEmpty.Broadcast()
	q.mu.Unlock()

	for _, pj := range pending {
		pj.done <- result{err: errShutdown}
	}
	q.wg.Wait()
}

// consume is the sole consumer: dequeue one job, run it to completion, loop.
func (q *Queue) consume() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.heap) == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if len(q.heap) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		pj := heap.Pop(&q.heap).(*pendingJob)
		critical := q.critical
		q.mu.Unlock()
		q.releaseSlot()

		if critical != nil {
			pj.done <- result{err: &CriticalError{Cause: critical}}
			continue
		}

		outcome, err := q.run(pj)
		if ce, ok := err.(*CriticalError); ok {
			q.mu.Lock()
			q.critical = ce.Cause
			q.mu.Unlock()
		}
		select {
		case pj.done <- result{outcome: outcome, err: err}:
		default:
		}
	}
}

// run invokes the container provider for one job: compile, then test only if
// compile succeeded. Not interruptible once started.
func (q *Queue) run(pj *pendingJob) (*Outcome, error) {
	ctx := context.Background() // compile is never interrupted mid-flight
	if !q.provider.IsHealthy(ctx, q.name) {
		return nil, &CriticalError{Cause: fmt.Errorf("container %q unhealthy", q.name)}
	}

	compileResult, err := q.provider.Compile(ctx, q.name, pj.job.ProjectDir)
	if err != nil {
		return nil, &CriticalError{Cause: err}
	}

	out := &Outcome{Compile: compileResult}
	if !compileResult.Success {
		return out, nil
	}

	testResult, err := q.provider.RunTests(ctx, q.name, compileResult.ArtifactPath)
	if err != nil {
		return nil, &CriticalError{Cause: err}
	}
	out.Test = testResult
	return out, nil
}
