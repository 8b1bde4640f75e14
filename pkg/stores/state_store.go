package stores

// StateStore checkpoints conversation state scoped by a context (thread)
// identifier.  Callers decide the structure of the stored data.  The handle
// is created by the host process at startup and injected into the agent at
// construction; it is never a package-level singleton.

import (
	"sync"
)

type StateStore interface {
	Get(contextID string) (map[string]any, bool)
	Set(contextID string, data map[string]any)
	Delete(contextID string)
}

// InMemoryStateStore is the default implementation, safe for concurrent use.
type InMemoryStateStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		data: make(map[string]map[string]any),
	}
}

func (s *InMemoryStateStore) Get(contextID string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.data[contextID]
	if !ok {
		return nil, false
	}

	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = v
	}
	return out, true
}

func (s *InMemoryStateStore) Set(contextID string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[contextID] = data
}

func (s *InMemoryStateStore) Delete(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, contextID)
}
