package resultstore

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps records in process memory.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]map[string]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]map[string]Record)}
}

// Save stores or replaces a record.
func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[rec.RunID]
	if !ok {
		run = make(map[string]Record)
		m.runs[rec.RunID] = run
	}
	run[rec.NodeID] = rec
	return nil
}

// Get returns one record or ErrNotFound.
func (m *Memory) Get(_ context.Context, runID, nodeID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[runID][nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// List returns the records of a run ordered by node id.
func (m *Memory) List(_ context.Context, runID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.runs[runID]))
	for _, rec := range m.runs[runID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
