package tools

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func descriptorWithSchema(properties map[string]any, capture *map[string]any) Descriptor {
	return Descriptor{
		Tool: mcp.Tool{
			Name: "query",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: properties,
			},
		},
		Invoke: func(ctx context.Context, args map[string]any) (string, error) {
			*capture = args
			return "ok", nil
		},
	}
}

func TestSchemaDefaults(t *testing.T) {
	var captured map[string]any

	d := descriptorWithSchema(map[string]any{
		"schemas": map[string]any{
			"type":    "array",
			"default": []any{"public"},
		},
		"query": map[string]any{
			"type": "string",
		},
	}, &captured)

	defaults := SchemaDefaults(d)
	assert.Len(t, defaults, 1)
	assert.Equal(t, []any{"public"}, defaults["schemas"])
}

func TestWithSchemaDefaults_NoDefaultsIsIdentity(t *testing.T) {
	var captured map[string]any

	d := descriptorWithSchema(map[string]any{
		"query": map[string]any{"type": "string"},
	}, &captured)

	patched := WithSchemaDefaults(d)

	_, err := patched.Invoke(context.Background(), map[string]any{"query": "select 1"})
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"query": "select 1"}, captured)
}

func TestWithSchemaDefaults_InjectsForAbsentAndNull(t *testing.T) {
	properties := map[string]any{
		"schemas": map[string]any{
			"type":    "array",
			"default": []any{"public"},
		},
		"query": map[string]any{"type": "string"},
	}

	tests := []struct {
		name string
		args map[string]any
		want any
	}{
		{
			name: "absent argument gets the default",
			args: map[string]any{"query": "select 1"},
			want: []any{"public"},
		},
		{
			name: "null argument gets the default",
			args: map[string]any{"query": "select 1", "schemas": nil},
			want: []any{"public"},
		},
		{
			name: "explicit argument is preserved",
			args: map[string]any{"query": "select 1", "schemas": []any{"auth"}},
			want: []any{"auth"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured map[string]any
			patched := WithSchemaDefaults(descriptorWithSchema(properties, &captured))

			_, err := patched.Invoke(context.Background(), tt.args)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, captured["schemas"])
			assert.Equal(t, "select 1", captured["query"])
		})
	}
}

func TestWithSchemaDefaults_PreservesToolContract(t *testing.T) {
	var captured map[string]any

	d := descriptorWithSchema(map[string]any{
		"schemas": map[string]any{
			"type":    "array",
			"default": []any{"public"},
		},
	}, &captured)

	patched := WithSchemaDefaults(d)
	assert.Equal(t, d.Tool.Name, patched.Tool.Name)
	assert.Equal(t, d.Tool.InputSchema, patched.Tool.InputSchema)
}

func TestWithSchemaDefaults_DoesNotMutateCallerArgs(t *testing.T) {
	var captured map[string]any

	d := descriptorWithSchema(map[string]any{
		"schemas": map[string]any{
			"type":    "array",
			"default": []any{"public"},
		},
	}, &captured)

	patched := WithSchemaDefaults(d)

	args := map[string]any{"query": "select 1"}
	_, err := patched.Invoke(context.Background(), args)
	assert.NoError(t, err)

	_, present := args["schemas"]
	assert.False(t, present)
}
