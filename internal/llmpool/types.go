package llmpool

import (
	"time"

	"github.com/jpequegn/benchflow-eval/internal/llmadapter"
	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Kind distinguishes a fresh-generation work item from a repair one.
type Kind int

const (
	KindGenerate Kind = iota
	KindRepair
)

// WorkItem describes a single attempted LLM generation for one
// (task, variant, attemptNumber).
type WorkItem struct {
	TaskID       string
	VariantID    string
	Attempt      int
	Kind         Kind
	Variant      model.ModelVariant
	Prompt       string
	OriginalCode string // Kind == KindRepair
	PriorErrors  []string // Kind == KindRepair
	Stream       bool
	OnChunk      func(llmadapter.Chunk)
}

// Result is what the pool returns for one WorkItem.
type Result struct {
	Item     WorkItem
	Response *llmadapter.Response
	Err      error
	Elapsed  time.Duration
}

// Config configures the pool.
type Config struct {
	GlobalConcurrency int           // default 10
	MaxRetries        int           // default 3
	BaseBackoff       time.Duration // default 500ms
	CallTimeout       time.Duration // 0 means no per-call timeout
}

func (c Config) withDefaults() Config {
	if c.GlobalConcurrency <= 0 {
		c.GlobalConcurrency = 10
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 500 * time.Millisecond
	}
	return c
}
