// Package checkpoint persists conversation state between pipeline runs,
// keyed by thread identifier.
package checkpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/salescope/salescope/internal/conversation"
)

var ErrNotFound = errors.New("thread not found")

// Store loads and saves one conversation state per thread. Load returns
// ErrNotFound for a thread that has never been saved.
type Store interface {
	Load(ctx context.Context, threadID string) (conversation.State, error)
	Save(ctx context.Context, threadID string, state conversation.State) error
}

// MemoryStore keeps checkpoints in process memory. State is lost on restart,
// which suits single-instance deployments and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]conversation.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]conversation.State)}
}

func (m *MemoryStore) Load(_ context.Context, threadID string) (conversation.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[threadID]
	if !ok {
		return conversation.State{}, ErrNotFound
	}
	// Copy the history so callers cannot mutate the stored slice.
	copied := state
	copied.Messages = append([]conversation.Message(nil), state.Messages...)
	return copied, nil
}

func (m *MemoryStore) Save(_ context.Context, threadID string, state conversation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := state
	stored.Messages = append([]conversation.Message(nil), state.Messages...)
	m.states[threadID] = stored
	return nil
}
