package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/flowbridge/internal/dag"
	"github.com/specialistvlad/flowbridge/internal/node"
	"github.com/specialistvlad/flowbridge/internal/registry"
	"github.com/specialistvlad/flowbridge/internal/result"
)

// MockSleeperModule registers the "sleeper" node type for concurrency
// tests. Each node sleeps, records when it ran and reports its id on the
// completion channel.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

// Record returns the execution record of a node.
func (m *MockSleeperModule) Record(id string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ExecutionTimes[id]
}

// Register implements the registry.Module interface.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	(&SimpleModule{
		Tag: "sleeper",
		Fn: func(ctx context.Context, decl dag.NodeDecl, in result.Inputs, rc *node.RunContext) *result.Envelope {
			startTime := time.Now()
			select {
			case <-time.After(m.sleepDuration):
			case <-ctx.Done():
				return rc.Fail(ctx.Err())
			}
			endTime := time.Now()

			m.mu.Lock()
			m.ExecutionTimes[decl.ID] = &ExecutionRecord{Start: startTime, End: endTime}
			m.mu.Unlock()

			if m.completionChan != nil {
				m.completionChan <- decl.ID
			}
			return rc.OK(len(in))
		},
	}).Register(r)
}
