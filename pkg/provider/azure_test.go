package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/theapemachine/supabase-a2a/pkg/tools"
)

func testDescriptor(name string, capture *map[string]any) tools.Descriptor {
	return tools.Descriptor{
		Tool: mcp.Tool{
			Name:        name,
			Description: "runs a SQL query",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"query": map[string]any{"type": "string"},
				},
				Required: []string{"query"},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			if capture != nil {
				*capture = args
			}
			return "result", nil
		},
	}
}

func newTestEngine(descriptors ...tools.Descriptor) *AzureEngine {
	return NewAzureEngine(Config{
		Endpoint:   "https://example.openai.azure.com",
		APIKey:     "test-key",
		APIVersion: "2024-08-01-preview",
		Deployment: "gpt-test",
	}, descriptors)
}

func TestConvertTools(t *testing.T) {
	params := convertTools([]tools.Descriptor{testDescriptor("execute_sql", nil)})

	assert.Len(t, params, 1)
	assert.Equal(t, "execute_sql", params[0].Function.Name)
	assert.Equal(t, "runs a SQL query", params[0].Function.Description.Value)

	schema := map[string]any(params[0].Function.Parameters)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"query"}, schema["required"])
}

func TestInvokeDispatch(t *testing.T) {
	var captured map[string]any
	engine := newTestEngine(testDescriptor("execute_sql", &captured))

	result, err := engine.invoke(context.Background(), "execute_sql", `{"query":"select 1"}`)
	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, map[string]any{"query": "select 1"}, captured)
}

func TestInvokeEmptyArguments(t *testing.T) {
	var captured map[string]any
	engine := newTestEngine(testDescriptor("list_tables", &captured))

	_, err := engine.invoke(context.Background(), "list_tables", "")
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{}, captured)
}

func TestInvokeUnknownTool(t *testing.T) {
	engine := newTestEngine(testDescriptor("execute_sql", nil))

	_, err := engine.invoke(context.Background(), "drop_database", "{}")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestInvokeMalformedArguments(t *testing.T) {
	engine := newTestEngine(testDescriptor("execute_sql", nil))

	_, err := engine.invoke(context.Background(), "execute_sql", `{"query":`)
	assert.Error(t, err)
}

func TestMaxStepsDefault(t *testing.T) {
	engine := newTestEngine()
	assert.Equal(t, 25, engine.conf.MaxSteps)
}

func TestRunTurnSurvivesToolFailure(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)

	responses := []string{
		`{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"execute_sql","arguments":"{\"query\":\"select 1\"}"}}]}}]}`,
		`{"id":"2","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"I could not run that query."}}]}`,
	}

	ts, errTS := newCompletionsServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mu.Lock()
		bodies = append(bodies, string(body))
		reply := responses[0]
		if len(bodies) > 1 {
			reply = responses[1]
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	if errTS != nil {
		t.Skip("network disabled in environment; skipping test")
	}
	defer ts.Close()

	engine := NewAzureEngine(Config{
		Endpoint:   ts.URL,
		APIKey:     "test-key",
		APIVersion: "2024-08-01-preview",
		Deployment: "gpt-test",
	}, []tools.Descriptor{{
		Tool: mcp.Tool{
			Name: "execute_sql",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]any{"query": map[string]any{"type": "string"}},
			},
		},
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			return "", fmt.Errorf("connection reset")
		},
	}})

	var steps []Step
	turn, err := engine.RunTurn(context.Background(), nil, "how many users?", func(step Step) {
		steps = append(steps, step)
	})

	assert.NoError(t, err)
	assert.NotNil(t, turn)
	assert.Equal(t, "I could not run that query.", turn.FinalText)

	// Both completions ran: the turn did not abort on the tool failure.
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, bodies, 2)

	// The failure text was sent back to the model as the tool result.
	assert.Contains(t, bodies[1], "Error executing tool execute_sql")
	assert.Contains(t, bodies[1], "connection reset")

	assert.Len(t, steps, 3)
	assert.Equal(t, StepToolCall, steps[0].Kind)
	assert.Equal(t, StepToolResult, steps[1].Kind)
	assert.Contains(t, steps[1].Content, "Error executing tool execute_sql")
	assert.Equal(t, StepAssistant, steps[2].Kind)
}

// newCompletionsServer wraps httptest.NewServer but converts the panic that
// is thrown when the environment forbids listening on sockets into a regular
// error so the caller can gracefully skip the test.
func newCompletionsServer(h http.Handler) (*httptest.Server, error) {
	var srv *httptest.Server
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("listener not permitted: %v", r)
			}
		}()
		srv = httptest.NewServer(h)
	}()
	return srv, err
}
