package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process deployments where persistence isn't required
//
// MemStore is thread-safe and supports concurrent access. Data is lost
// when the process terminates.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record   // recordID -> record
	session map[string][]string // sessionID -> ordered record IDs
}

// NewMemStore creates a new in-memory archive.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]Record),
		session: make(map[string][]string),
	}
}

// Save archives one record (implements Store).
func (m *MemStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[rec.ID]; !exists {
		m.session[rec.SessionID] = append(m.session[rec.SessionID], rec.ID)
	}
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get retrieves a record by ID (implements Store).
func (m *MemStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[id]
	if !exists {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// BySession lists a session's records oldest first (implements Store).
func (m *MemStore) BySession(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.session[sessionID]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRecord(m.records[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Close implements Store. A no-op for the in-memory archive.
func (m *MemStore) Close() error { return nil }

// cloneRecord copies a record so callers cannot mutate stored state
// through the shared Fields map.
func cloneRecord(rec Record) Record {
	out := rec
	out.Fields = make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		out.Fields[k] = v
	}
	return out
}
