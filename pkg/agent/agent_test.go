package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/supabase-a2a/pkg/provider"
	"github.com/theapemachine/supabase-a2a/pkg/stores"
)

// fakeEngine scripts a single turn: the steps to emit and the turn (or
// error) to return.
type fakeEngine struct {
	steps      []provider.Step
	turn       *provider.Turn
	err        error
	gotHistory any
	gotQuery   string
}

func (e *fakeEngine) RunTurn(
	ctx context.Context, history any, query string, emit func(provider.Step),
) (*provider.Turn, error) {
	e.gotHistory = history
	e.gotQuery = query

	for _, step := range e.steps {
		emit(step)
	}

	if e.err != nil {
		return nil, e.err
	}
	return e.turn, nil
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()

	var out []Event
	for event := range events {
		out = append(out, event)
	}
	return out
}

func TestStreamBeforeInitialize(t *testing.T) {
	a := New(Config{}, stores.NewInMemoryStateStore())

	events, err := a.Stream(context.Background(), "how many users?", "ctx-1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Nil(t, events)
}

func TestStreamEmitsProgressAndTerminal(t *testing.T) {
	engine := &fakeEngine{
		steps: []provider.Step{
			{Kind: provider.StepToolCall, ToolName: "execute_sql"},
			{Kind: provider.StepToolResult, ToolName: "execute_sql"},
			{Kind: provider.StepToolCall, ToolName: "list_tables"},
			{Kind: provider.StepToolResult, ToolName: "list_tables"},
			{Kind: provider.StepAssistant},
		},
		turn: &provider.Turn{
			FinalText:  "There are 42 users.",
			Structured: json.RawMessage(`{"status":"completed","message":"There are 42 users."}`),
		},
	}

	state := stores.NewInMemoryStateStore()
	a := New(Config{}, state, WithEngine(engine))

	events, err := a.Stream(context.Background(), "how many users?", "ctx-1")
	assert.NoError(t, err)

	got := collect(t, events)
	assert.Len(t, got, 5)

	assert.Equal(t, QueryingText, got[0].Content)
	assert.Equal(t, ProcessingText, got[1].Content)
	assert.Equal(t, QueryingText, got[2].Content)
	assert.Equal(t, ProcessingText, got[3].Content)

	terminal := got[4]
	assert.NoError(t, terminal.Err)
	assert.True(t, terminal.IsTaskComplete)
	assert.False(t, terminal.RequireUserInput)
	assert.Equal(t, "There are 42 users.", terminal.Content)

	// In-progress events never carry terminal flags.
	for _, event := range got[:4] {
		assert.False(t, event.IsTaskComplete)
		assert.False(t, event.RequireUserInput)
	}

	snapshot, ok := state.Get("ctx-1")
	assert.True(t, ok)
	assert.Equal(t,
		ResponseFormat{Status: StatusCompleted, Message: "There are 42 users."},
		snapshot[KeyStructuredResponse],
	)
}

func TestStreamPassesCheckpointedHistory(t *testing.T) {
	engine := &fakeEngine{
		turn: &provider.Turn{FinalText: "hi"},
	}

	state := stores.NewInMemoryStateStore()
	state.Set("ctx-1", map[string]any{KeyMessages: "prior history"})

	a := New(Config{}, state, WithEngine(engine))

	events, err := a.Stream(context.Background(), "and now?", "ctx-1")
	assert.NoError(t, err)
	collect(t, events)

	assert.Equal(t, "prior history", engine.gotHistory)
	assert.Equal(t, "and now?", engine.gotQuery)
}

func TestStreamMalformedStructuredFallsBack(t *testing.T) {
	engine := &fakeEngine{
		turn: &provider.Turn{
			FinalText:  "something",
			Structured: json.RawMessage(`{"status":`),
		},
	}

	a := New(Config{}, stores.NewInMemoryStateStore(), WithEngine(engine))

	events, err := a.Stream(context.Background(), "how many users?", "ctx-1")
	assert.NoError(t, err)

	got := collect(t, events)
	assert.Len(t, got, 1)
	assert.Equal(t, FallbackText, got[0].Content)
	assert.False(t, got[0].IsTaskComplete)
	assert.True(t, got[0].RequireUserInput)
}

func TestStreamEngineErrorIsTerminal(t *testing.T) {
	engine := &fakeEngine{
		steps: []provider.Step{{Kind: provider.StepToolCall, ToolName: "execute_sql"}},
		err:   assert.AnError,
	}

	state := stores.NewInMemoryStateStore()
	a := New(Config{}, state, WithEngine(engine))

	events, err := a.Stream(context.Background(), "how many users?", "ctx-1")
	assert.NoError(t, err)

	got := collect(t, events)
	assert.Len(t, got, 2)
	assert.NoError(t, got[0].Err)
	assert.ErrorIs(t, got[1].Err, assert.AnError)

	// Failed turns do not checkpoint.
	_, ok := state.Get("ctx-1")
	assert.False(t, ok)
}

func TestCleanupRequiresReinitialize(t *testing.T) {
	a := New(Config{}, stores.NewInMemoryStateStore(), WithEngine(&fakeEngine{
		turn: &provider.Turn{FinalText: "hi"},
	}))

	assert.NoError(t, a.Cleanup())
	assert.NoError(t, a.Cleanup())

	_, err := a.Stream(context.Background(), "hello", "ctx-1")
	assert.ErrorIs(t, err, ErrNotInitialized)
}
