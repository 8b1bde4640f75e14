package service

// TaskManager defines the server-side behaviour for the core Task lifecycle
// JSON-RPC methods.  AgentTaskManager is the production implementation: it
// drives the Supabase agent for each request and records every status
// transition in the task store so tasks/get always reflects reality.

import (
	"context"

	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/theapemachine/supabase-a2a/pkg/agent"
	"github.com/theapemachine/supabase-a2a/pkg/errors"
	"github.com/theapemachine/supabase-a2a/pkg/push"
	"github.com/theapemachine/supabase-a2a/pkg/stores"
)

// TaskManager is plugged into an A2AServer.  Each method should do its own
// validation and return a *errors.RpcError value if the request is invalid
// or cannot be fulfilled.
type TaskManager interface {
	SendTask(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, *errors.RpcError)
	GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, *errors.RpcError)
	CancelTask(ctx context.Context, id string) (*a2a.Task, *errors.RpcError)

	// StreamTask starts processing the task and returns a read-only channel
	// from which the caller will receive TaskStatusUpdateEvent or
	// TaskArtifactUpdateEvent objects until the task finishes (the final flag
	// is set on the last status event).  The channel is closed by the
	// TaskManager when the stream is finished.
	StreamTask(ctx context.Context, params a2a.TaskSendParams) (<-chan any, *errors.RpcError)
}

// AgentTaskManager bridges the A2A task lifecycle onto the Supabase agent.
type AgentTaskManager struct {
	agent *agent.SupabaseAgent
	store stores.TaskStore
	push  *push.Service
}

func NewAgentTaskManager(a *agent.SupabaseAgent, store stores.TaskStore, pushSvc *push.Service) *AgentTaskManager {
	if store == nil {
		store = stores.NewInMemoryTaskStore()
	}

	return &AgentTaskManager{
		agent: a,
		store: store,
		push:  pushSvc,
	}
}

func (m *AgentTaskManager) SendTask(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, *errors.RpcError) {
	task, query, rpcErr := m.acceptTask(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	events, err := m.agent.Stream(ctx, query, task.SessionID)
	if err != nil {
		m.failTask(ctx, task, err.Error())
		return nil, errors.ErrAgentNotInitialized.WithMessagef("%s", err.Error())
	}

	for event := range events {
		m.applyEvent(ctx, task, event)
	}

	m.notify(task)
	return trimHistory(task, params.HistoryLength), nil
}

func (m *AgentTaskManager) GetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := m.store.Get(ctx, params.ID)
	if rpcErr != nil {
		return nil, rpcErr
	}

	return trimHistory(task, params.HistoryLength), nil
}

func (m *AgentTaskManager) CancelTask(ctx context.Context, id string) (*a2a.Task, *errors.RpcError) {
	task, rpcErr := m.store.Cancel(ctx, id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	m.notify(task)
	return task, nil
}

func (m *AgentTaskManager) StreamTask(ctx context.Context, params a2a.TaskSendParams) (<-chan any, *errors.RpcError) {
	task, query, rpcErr := m.acceptTask(ctx, params)
	if rpcErr != nil {
		return nil, rpcErr
	}

	events, err := m.agent.Stream(ctx, query, task.SessionID)
	if err != nil {
		m.failTask(ctx, task, err.Error())
		return nil, errors.ErrAgentNotInitialized.WithMessagef("%s", err.Error())
	}

	ch := make(chan any, 8)

	ch <- a2a.TaskStatusUpdateEvent{
		ID:     task.ID,
		Status: task.Status,
		Final:  false,
	}

	go func() {
		defer close(ch)

		for event := range events {
			final := m.applyEvent(ctx, task, event)

			if final {
				for _, artifact := range task.Artifacts {
					ch <- a2a.TaskArtifactUpdateEvent{
						ID:       task.ID,
						Artifact: artifact,
					}
				}
			}

			ch <- a2a.TaskStatusUpdateEvent{
				ID:     task.ID,
				Status: task.Status,
				Final:  final,
			}

			if final {
				m.notify(task)
			}
		}
	}()

	return ch, nil
}

// acceptTask fetches or creates the task, records the incoming user message
// and marks the task as working.
func (m *AgentTaskManager) acceptTask(ctx context.Context, params a2a.TaskSendParams) (*a2a.Task, string, *errors.RpcError) {
	query := firstText(params.Message)
	if params.ID == "" || query == "" {
		return nil, "", errors.ErrInvalidParams.WithMessagef(
			"tasks/send requires a task id and a text part",
		)
	}

	task, rpcErr := m.store.Get(ctx, params.ID)
	if rpcErr != nil {
		task = a2a.NewTask()
		task.ID = params.ID

		if params.SessionID != "" {
			task.SessionID = params.SessionID
		}

		if createErr := m.store.Create(ctx, task); createErr != nil {
			return nil, "", createErr
		}
	}

	if params.PushNotification != nil && m.push != nil {
		m.push.SetConfig(&a2a.TaskPushNotificationConfig{
			ID:                     task.ID,
			PushNotificationConfig: *params.PushNotification,
		})
	}

	task.History = append(task.History, params.Message)
	task.ToStatus(a2a.TaskStateWorking, nil)

	if updateErr := m.store.Update(ctx, task); updateErr != nil {
		return nil, "", updateErr
	}

	return task, query, nil
}

// applyEvent folds one agent event into the task and persists it.  The
// return value reports whether the event was terminal.
func (m *AgentTaskManager) applyEvent(ctx context.Context, task *a2a.Task, event agent.Event) bool {
	final := false

	switch {
	case event.Err != nil:
		task.ToStatus(a2a.TaskStateFailed, a2a.NewTextMessage("agent", event.Err.Error()))
		final = true
	case event.IsTaskComplete:
		message := a2a.NewTextMessage("agent", event.Content)
		task.History = append(task.History, *message)
		task.AddArtifact(a2a.NewTextArtifact("response", event.Content))
		task.ToStatus(a2a.TaskStateCompleted, message)
		final = true
	case event.RequireUserInput:
		message := a2a.NewTextMessage("agent", event.Content)
		task.History = append(task.History, *message)
		task.ToStatus(a2a.TaskStateInputReq, message)
		final = true
	default:
		task.ToStatus(a2a.TaskStateWorking, a2a.NewTextMessage("agent", event.Content))
	}

	_ = m.store.Update(ctx, task)
	return final
}

func (m *AgentTaskManager) failTask(ctx context.Context, task *a2a.Task, reason string) {
	task.ToStatus(a2a.TaskStateFailed, a2a.NewTextMessage("agent", reason))
	_ = m.store.Update(ctx, task)
}

func (m *AgentTaskManager) notify(task *a2a.Task) {
	if m.push == nil {
		return
	}

	m.push.Notify(task.ID, a2a.TaskStatusUpdateEvent{
		ID:     task.ID,
		Status: task.Status,
		Final:  task.Status.State.Terminal(),
	})
}

func firstText(message a2a.Message) string {
	for _, part := range message.Parts {
		if part.Type == a2a.PartTypeText && part.Text != "" {
			return part.Text
		}
	}

	return ""
}

func trimHistory(task *a2a.Task, length *int) *a2a.Task {
	if length == nil || *length < 0 || *length >= len(task.History) {
		return task
	}

	out := *task
	out.History = task.History[len(task.History)-*length:]
	return &out
}
