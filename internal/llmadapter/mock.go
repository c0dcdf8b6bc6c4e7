package llmadapter

import (
	"context"
	"sync"
	"time"

	"github.com/jpequegn/benchflow-eval/internal/model"
)

// Script is one scripted turn of a mock conversation: the code to return
// (or an error to fail with) for the Nth call carrying a given prompt. Once
// a prompt's turns are used up, its last turn is returned again.
type Script struct {
	Code    string
	Err     error
	Delay   time.Duration
}

// MockAdapter is a deterministic, in-process reference Adapter used by
// tests and the CLI's offline demo mode. Responses are driven by a
// scripted call sequence keyed by prompt so repair calls can return
// different code than the initial generation.
type MockAdapter struct {
	provider string

	mu      sync.Mutex
	scripts map[string][]Script // keyed by prompt
	calls   map[string]int
}

// NewMockAdapter creates a MockAdapter for the given provider name.
func NewMockAdapter(provider string) *MockAdapter {
	return &MockAdapter{provider: provider, scripts: make(map[string][]Script), calls: make(map[string]int)}
}

// Script registers the sequence of turns to return for calls carrying the
// given prompt text verbatim.
func (m *MockAdapter) Script(prompt string, turns ...Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[prompt] = turns
}

func (m *MockAdapter) Provider() string { return m.provider }

func (m *MockAdapter) next(prompt string) (Script, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns, ok := m.scripts[prompt]
	if !ok {
		return Script{}, false
	}
	idx := m.calls[prompt]
	if idx >= len(turns) {
		idx = len(turns) - 1
	}
	m.calls[prompt]++
	return turns[idx], true
}

func (m *MockAdapter) Generate(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error) {
	return m.respond(ctx, req, onChunk)
}

func (m *MockAdapter) GenerateFix(ctx context.Context, originalCode string, errs []string, req Request, onChunk func(Chunk)) (*Response, error) {
	return m.respond(ctx, req, onChunk)
}

func (m *MockAdapter) respond(ctx context.Context, req Request, onChunk func(Chunk)) (*Response, error) {
	turn, ok := m.next(req.Prompt)
	if !ok {
		turn = Script{Code: "procedure Placeholder()\nend procedure"}
	}

	if turn.Delay > 0 {
		select {
		case <-time.After(turn.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if turn.Err != nil {
		return nil, &ProviderError{Provider: m.provider, Cause: turn.Err}
	}

	if req.Stream && onChunk != nil {
		for _, r := range turn.Code {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			onChunk(Chunk{Text: string(r)})
		}
		onChunk(Chunk{Done: true})
	}

	return &Response{
		Code:         turn.Code,
		Language:     "erp",
		Usage:        model.TokenUsage{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(turn.Code) / 4},
		Duration:     turn.Delay,
		FinishReason: "stop",
	}, nil
}

