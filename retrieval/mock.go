package retrieval

import (
	"context"
	"sync"
)

// MockCall records one Search invocation on a Mock.
type MockCall struct {
	SessionID string
	Query     string
}

// Mock is an in-memory Retriever for tests.
type Mock struct {
	mu       sync.Mutex
	Snippets []string
	Err      error
	Calls    []MockCall
}

// Search implements Retriever, recording the call and returning the
// configured snippets or error.
func (m *Mock) Search(_ context.Context, sessionID, query string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{SessionID: sessionID, Query: query})
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Snippets, nil
}

// CallCount returns how many times Search has been invoked.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
