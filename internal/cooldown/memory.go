package cooldown

import (
	"context"
	"sync"
)

// MemoryStore is an in-process StateStore. Automation starts enabled.
type MemoryStore struct {
	mu sync.RWMutex
	st State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: State{AutomationEnabled: true}}
}

func (s *MemoryStore) LoadCooldown(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st, nil
}

func (s *MemoryStore) SaveCooldown(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
	return nil
}
