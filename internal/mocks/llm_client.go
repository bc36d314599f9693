package mocks

import (
	"context"
	"fmt"
	"sync"

	"agentflow/pkg/agent/llm"
)

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when no scripted response is queued for the stage.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	scripts   map[string][]scripted
	modelName string
	mu        sync.Mutex
}

type scripted struct {
	err     error
	content string
}

// NewMockLLMClient creates a mock whose unscripted calls return an error
// naming the stage, so a test never silently consumes a default answer.
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{
		modelName: "mock-model",
		scripts:   make(map[string][]scripted),
	}
	m.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, fmt.Errorf("mock: no scripted response for stage %q", req.Stage)
	}
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	queue := m.scripts[req.Stage]
	if len(queue) > 0 {
		next := queue[0]
		m.scripts[req.Stage] = queue[1:]
		m.mu.Unlock()
		if next.err != nil {
			return llm.CompletionResponse{}, next.err
		}
		return llm.CompletionResponse{
			Content:    next.content,
			StopReason: "end_turn",
			Usage:      llm.Usage{InputTokens: 10, OutputTokens: len(next.content) / 4},
		}, nil
	}
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets the fallback handler for unscripted calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// Script queues responses for stage, consumed one per call.
func (m *MockLLMClient) Script(stage string, contents ...string) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range contents {
		m.scripts[stage] = append(m.scripts[stage], scripted{content: c})
	}
	return m
}

// ScriptError queues a failing call for stage.
func (m *MockLLMClient) ScriptError(stage string, err error) *MockLLMClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[stage] = append(m.scripts[stage], scripted{err: err})
	return m
}

// RespondWith makes every unscripted call return content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// FailCompleteWith makes every unscripted call return err.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// CallsFor returns the recorded requests for stage.
func (m *MockLLMClient) CallsFor(stage string) []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []llm.CompletionRequest
	for _, c := range m.CompleteCalls {
		if c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}

// Remaining reports how many scripted responses for stage were not consumed.
func (m *MockLLMClient) Remaining(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scripts[stage])
}

// ClientForStage lets the mock serve as its own client source, so a stage
// invoker routes every stage to the same script.
func (m *MockLLMClient) ClientForStage(string) (llm.LLMClient, error) {
	return m, nil
}
