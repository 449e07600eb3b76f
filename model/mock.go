package model

import (
	"context"
	"sync"

	"github.com/clinicoai/clinico-go/schema"
)

// MockChatModel is a scripted ChatModel for tests.
//
// Each Chat call returns the next entry from Responses; once exhausted the
// last response repeats. Set Err to inject a failure. Every invocation is
// recorded in Calls so tests can assert on the exact history a node sent.
//
//	mock := &MockChatModel{Responses: []ChatOut{
//	    {Text: "YES"},
//	    {ToolCalls: []ToolCall{{ID: "call_1", Name: "get_relevant_contexts"}}},
//	}}
type MockChatModel struct {
	Responses []ChatOut
	Err       error
	Calls     []MockChatCall

	mu   sync.Mutex
	next int
}

// MockChatCall records one Chat invocation.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)
	m.Calls = append(m.Calls, MockChatCall{Messages: snapshot, Tools: tools})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// CallCount returns how many times Chat has been invoked.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears recorded calls and rewinds the response script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// MockStructuredModel is a scripted StructuredModel for tests.
//
// Outputs are consumed in order (last repeats); Err injects a capability
// failure. Prompts and descriptors are recorded per call.
type MockStructuredModel struct {
	Outputs []map[string]string
	Err     error
	Calls   []MockStructuredCall

	mu   sync.Mutex
	next int
}

// MockStructuredCall records one GenerateStructured invocation.
type MockStructuredCall struct {
	Prompt string
	Desc   *schema.Descriptor
}

// GenerateStructured implements StructuredModel.
func (m *MockStructuredModel) GenerateStructured(ctx context.Context, prompt string, desc *schema.Descriptor) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockStructuredCall{Prompt: prompt, Desc: desc})

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Outputs) == 0 {
		return map[string]string{}, nil
	}

	idx := m.next
	if idx >= len(m.Outputs) {
		idx = len(m.Outputs) - 1
	} else {
		m.next++
	}

	out := make(map[string]string, len(m.Outputs[idx]))
	for k, v := range m.Outputs[idx] {
		out[k] = v
	}
	return out, nil
}

// CallCount returns how many times GenerateStructured has been invoked.
func (m *MockStructuredModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
