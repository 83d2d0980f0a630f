package llm

import (
	"context"
	"sync"
)

// Mock is a configurable Client for tests.
type Mock struct {
	// CompleteFunc is called by Complete. If nil, Responses are returned
	// in order and the last one repeats.
	CompleteFunc func(ctx context.Context, system, prompt string) (string, error)
	Responses    []string
	ModelName    string

	mu      sync.Mutex
	Prompts []string
}

// NewMock returns a mock answering with responses in order.
func NewMock(responses ...string) *Mock {
	return &Mock{Responses: responses, ModelName: "mock-model"}
}

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	n := len(m.Prompts)
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, prompt)
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	return m.Responses[min(n, len(m.Responses)-1)], nil
}

// Model implements Client.
func (m *Mock) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Calls returns how many times Complete was called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

var _ Client = (*Mock)(nil)
