package compilequeue

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpequegn/benchflow-eval/internal/container"
)

// Job is one submitted compile-and-test request.
type Job struct {
	TaskID    string
	VariantID string
	Code      string
	ProjectDir string // where Code (and any scaffolding) lives on disk
	Priority  int     // higher runs first among queued jobs; policy: attemptNumber
	Deadline  time.Time // zero means no deadline
}

// Outcome is what a consumed Job produces.
type Outcome struct {
	Compile *container.CompileResult
	Test    *container.TestResult // nil if compile failed
}

// QueueFullError is returned by Submit only when a job has a deadline and
// the queue has no room by the time that deadline arrives while waiting to
// be admitted.
type QueueFullError struct{ Capacity int }

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("compilequeue: full at capacity %d", e.Capacity)
}

// QueueTimeoutError is returned when a job's deadline elapses while it is
// still waiting in the queue (admitted but not yet run).
type QueueTimeoutError struct{ TaskID, VariantID string }

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("compilequeue: deadline elapsed waiting for %s/%s", e.TaskID, e.VariantID)
}

// CriticalError indicates the shared container is unreachable or otherwise
// broken. The orchestrator must surface this and abort remaining work;
// the queue keeps running but every subsequent job fails fast until the
// container is restored.
type CriticalError struct {
	Cause error
}

func (e *CriticalError) Error() string { return fmt.Sprintf("compilequeue: critical: %v", e.Cause) }
func (e *CriticalError) Unwrap() error { return e.Cause }

var errShutdown = errors.New("compilequeue: queue shut down")
