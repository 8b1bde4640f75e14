package stores

// TaskStore persists tasks across the lifecycle JSON-RPC methods.  The
// built-in implementation is an in-memory map safe for concurrent use, which
// is sufficient for a single-process agent; production deployments can swap
// in a persistent implementation.

import (
	"context"
	"sync"

	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/theapemachine/supabase-a2a/pkg/errors"
)

type TaskStore interface {
	Get(ctx context.Context, id string) (*a2a.Task, *errors.RpcError)
	Create(ctx context.Context, task *a2a.Task) *errors.RpcError
	Update(ctx context.Context, task *a2a.Task) *errors.RpcError
	Cancel(ctx context.Context, id string) (*a2a.Task, *errors.RpcError)
}

type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]*a2a.Task),
	}
}

func (s *InMemoryTaskStore) Get(ctx context.Context, id string) (*a2a.Task, *errors.RpcError) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.ErrTaskNotFound
	}

	// Return a copy so callers cannot mutate stored state without Update.
	out := *task
	return &out, nil
}

func (s *InMemoryTaskStore) Create(ctx context.Context, task *a2a.Task) *errors.RpcError {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

func (s *InMemoryTaskStore) Update(ctx context.Context, task *a2a.Task) *errors.RpcError {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; !ok {
		return errors.ErrTaskNotFound
	}

	stored := *task
	s.tasks[task.ID] = &stored
	return nil
}

func (s *InMemoryTaskStore) Cancel(ctx context.Context, id string) (*a2a.Task, *errors.RpcError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, errors.ErrTaskNotFound
	}

	if task.Status.State.Terminal() {
		return nil, errors.ErrTaskCancelled.WithMessagef(
			"task %s is already in terminal state %s", id, task.Status.State,
		)
	}

	task.ToStatus(a2a.TaskStateCanceled, a2a.NewTextMessage("agent", "task canceled"))
	out := *task
	return &out, nil
}
