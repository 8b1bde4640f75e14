package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		snapshot map[string]any
		want     Response
	}{
		{
			name: "completed",
			snapshot: map[string]any{
				KeyStructuredResponse: ResponseFormat{Status: StatusCompleted, Message: "Done."},
			},
			want: Response{IsTaskComplete: true, RequireUserInput: false, Content: "Done."},
		},
		{
			name: "input required",
			snapshot: map[string]any{
				KeyStructuredResponse: ResponseFormat{Status: StatusInputRequired, Message: "Which table?"},
			},
			want: Response{IsTaskComplete: false, RequireUserInput: true, Content: "Which table?"},
		},
		{
			name: "error",
			snapshot: map[string]any{
				KeyStructuredResponse: ResponseFormat{Status: StatusError, Message: "Query failed."},
			},
			want: Response{IsTaskComplete: false, RequireUserInput: true, Content: "Query failed."},
		},
		{
			name:     "missing structured response falls back",
			snapshot: map[string]any{KeyMessages: []any{}},
			want:     Response{IsTaskComplete: false, RequireUserInput: true, Content: FallbackText},
		},
		{
			name: "wrongly typed structured response falls back",
			snapshot: map[string]any{
				KeyStructuredResponse: "not a response format",
			},
			want: Response{IsTaskComplete: false, RequireUserInput: true, Content: FallbackText},
		},
		{
			name: "unknown status falls back",
			snapshot: map[string]any{
				KeyStructuredResponse: ResponseFormat{Status: "confused", Message: "?"},
			},
			want: Response{IsTaskComplete: false, RequireUserInput: true, Content: FallbackText},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.snapshot))
		})
	}
}

func TestResponseSchema(t *testing.T) {
	schema := ResponseSchema()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"status", "message"}, schema["required"])
	assert.Equal(t, false, schema["additionalProperties"])

	properties := schema["properties"].(map[string]any)
	status := properties["status"].(map[string]any)
	assert.ElementsMatch(t,
		[]string{"input_required", "completed", "error"},
		status["enum"].([]string),
	)
}
