package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Kind is the closed set of event shapes the bus publishes.
type Kind string

const (
	KindTaskStarted       Kind = "task_started"
	KindLLMStarted        Kind = "llm_started"
	KindLLMChunk          Kind = "llm_chunk"
	KindLLMCompleted      Kind = "llm_completed"
	KindCompileQueued     Kind = "compile_queued"
	KindCompileStarted    Kind = "compile_started"
	KindCompileCompleted  Kind = "compile_completed"
	KindResult            Kind = "result"
	KindTaskCompleted     Kind = "task_completed"
	KindProgress          Kind = "progress"
	KindError             Kind = "error"
)

// Event is a single published lifecycle event. Only the fields relevant to
// Kind are populated; the rest are zero-valued.
type Event struct {
	ID        string
	Kind      Kind
	Timestamp time.Time

	TaskID    string
	VariantID string
	Attempt   int
	Variants  []string // task_started

	Success bool // compile_queued/started/completed

	Result     *model.TaskExecutionResult // result
	Comparison *model.TaskComparison      // task_completed

	Completed         int // progress
	Total             int
	ActiveLLMCalls    int
	CompileQueueLength int
	ETAMillis         int64

	Err error // error

	Chunk string // llm_chunk
}

// New stamps an event with a fresh ID and the current time.
func New(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, Timestamp: time.Now()}
}
