// Package checkpoint defines the durable per-thread state store contract
// and an in-memory reference implementation.
package checkpoint

import (
	"context"
	"sync"

	"github.com/deepagent-run/deepagent/internal/state"
)

// ThreadID is an opaque conversational context identifier.
type ThreadID string

// Checkpointer maps ThreadID to AgentState. All operations may suspend for
// I/O. Absence on Load is a normal result, not an error. Save and Delete
// are idempotent.
type Checkpointer interface {
	Save(ctx context.Context, id ThreadID, s *state.AgentState) error
	Load(ctx context.Context, id ThreadID) (*state.AgentState, bool, error)
	Delete(ctx context.Context, id ThreadID) error
	ListThreads(ctx context.Context) ([]ThreadID, error)
}

// Memory is an in-memory Checkpointer backed by a reader-writer protected
// map, the reference implementation named in §4.6.
type Memory struct {
	mu      sync.RWMutex
	threads map[ThreadID]*state.AgentState
}

// NewMemory returns an empty in-memory checkpointer.
func NewMemory() *Memory {
	return &Memory{threads: make(map[ThreadID]*state.AgentState)}
}

func (m *Memory) Save(ctx context.Context, id ThreadID, s *state.AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[id] = s.Snapshot()
	return nil
}

func (m *Memory) Load(ctx context.Context, id ThreadID) (*state.AgentState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.threads[id]
	if !ok {
		return nil, false, nil
	}
	return s.Snapshot(), true, nil
}

func (m *Memory) Delete(ctx context.Context, id ThreadID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, id)
	return nil
}

func (m *Memory) ListThreads(ctx context.Context) ([]ThreadID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ThreadID, 0, len(m.threads))
	for id := range m.threads {
		out = append(out, id)
	}
	return out, nil
}
