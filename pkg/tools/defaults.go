package tools

// Supabase MCP tool schemas sometimes mark fields as required even when a
// default is provided (e.g. schemas: ["public"]).  Models may omit those
// fields, causing tool calls to fail server-side.  WithSchemaDefaults wraps
// a descriptor so that declared property defaults are injected whenever the
// caller leaves an argument out or sends it as null.

import "context"

// SchemaDefaults collects the declared default for every property in the
// tool's input schema.  An empty map means no defaults are known.
func SchemaDefaults(d Descriptor) map[string]any {
	defaults := map[string]any{}

	for key, raw := range d.Tool.InputSchema.Properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if value, ok := prop["default"]; ok {
			defaults[key] = value
		}
	}

	return defaults
}

// WithSchemaDefaults returns a descriptor whose Invoke fills in declared
// schema defaults for absent or null arguments before forwarding to the
// original invocation.  When the schema declares no defaults the original
// descriptor is returned unchanged.  Name, description and schema are
// preserved so the model's view of the tool contract is unaffected.
func WithSchemaDefaults(d Descriptor) Descriptor {
	defaults := SchemaDefaults(d)
	if len(defaults) == 0 {
		return d
	}

	wrapper := &defaulter{defaults: defaults, next: d.Invoke}

	return Descriptor{
		Tool:   d.Tool,
		Invoke: wrapper.invoke,
	}
}

// defaulter holds the defaults mapping and a reference to the wrapped
// invocation, captured at construction time.
type defaulter struct {
	defaults map[string]any
	next     InvokeFunc
}

func (w *defaulter) invoke(ctx context.Context, args map[string]any) (string, error) {
	filled := make(map[string]any, len(args)+len(w.defaults))
	for key, value := range args {
		filled[key] = value
	}

	for key, value := range w.defaults {
		if existing, ok := filled[key]; !ok || existing == nil {
			filled[key] = value
		}
	}

	return w.next(ctx, filled)
}
