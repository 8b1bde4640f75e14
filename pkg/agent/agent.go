package agent

// SupabaseAgent is a specialized assistant for Supabase database queries.
// Every capability it exposes comes from the remote MCP tool registry; the
// reasoning loop itself is delegated to the provider engine.  The agent's
// own job is wiring: fetch and patch the tool set, run turns against the
// injected checkpoint store, and translate engine steps into the event
// protocol the A2A layer consumes.

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/supabase-a2a/pkg/provider"
	"github.com/theapemachine/supabase-a2a/pkg/stores"
	"github.com/theapemachine/supabase-a2a/pkg/tools"
)

const SystemInstruction = "You are a specialized assistant for querying Supabase databases. " +
	"You have access to MCP tools that can query Supabase databases via an HTTP MCP server. " +
	"Use the available MCP tools to answer questions about database data. " +
	"If the user asks about anything other than database queries or Supabase data, " +
	"politely state that you cannot help with that topic and can only assist with database-related queries. " +
	"Do not attempt to answer unrelated questions or use tools for other purposes."

const FormatInstruction = "Set response status to input_required if the user needs to provide more information to complete the request. " +
	"Set response status to error if there is an error while processing the request. " +
	"Set response status to completed if the request is complete."

const (
	// QueryingText is emitted once per outbound tool invocation.
	QueryingText = "Querying Supabase database via MCP..."
	// ProcessingText is emitted once per arriving tool result.
	ProcessingText = "Processing database results..."
)

// SupportedContentTypes lists the content types the agent accepts and
// produces.
var SupportedContentTypes = []string{"text", "text/plain"}

// ErrNotInitialized is returned when Stream is called before Initialize
// (or after Cleanup).
var ErrNotInitialized = errors.New("agent not initialized: call Initialize first")

// Engine runs one reasoning turn.  provider.AzureEngine is the production
// implementation.
type Engine interface {
	RunTurn(ctx context.Context, history any, query string, emit func(provider.Step)) (*provider.Turn, error)
}

// Event is one element of the stream a turn produces: zero or more
// in-progress responses followed by exactly one terminal element, which
// carries either the reduced Response or the error that ended the turn.
type Event struct {
	Response
	Err error `json:"-"`
}

type Config struct {
	MCPServerURL string
	MCPAPIKey    string

	AzureEndpoint   string
	AzureAPIKey     string
	AzureAPIVersion string
	AzureDeployment string
}

type SupabaseAgent struct {
	mu       sync.Mutex
	conf     Config
	state    stores.StateStore
	registry *tools.Registry
	engine   Engine
}

type Option func(*SupabaseAgent)

// WithEngine pre-wires a reasoning engine, marking the agent initialized.
// Used by tests and by hosts that build the engine themselves.
func WithEngine(engine Engine) Option {
	return func(a *SupabaseAgent) {
		a.engine = engine
	}
}

// New constructs the agent around an injected checkpoint store.  The store's
// lifecycle is owned by the host process.
func New(conf Config, state stores.StateStore, options ...Option) *SupabaseAgent {
	a := &SupabaseAgent{
		conf:  conf,
		state: state,
	}

	for _, option := range options {
		option(a)
	}

	return a
}

// Initialize connects the MCP session, fetches and patches the tool set and
// builds the reasoning engine.  It is idempotent: a second call on an
// initialized agent is a no-op.
func (a *SupabaseAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine != nil {
		return nil
	}

	log.Info("initializing Supabase agent", "mcp_url", a.conf.MCPServerURL)

	registry := tools.NewRegistry(
		a.conf.MCPServerURL,
		tools.WithBearerToken(a.conf.MCPAPIKey),
	)

	if err := registry.Connect(ctx); err != nil {
		return err
	}

	descriptors, err := registry.Descriptors(ctx)
	if err != nil {
		registry.Close()
		return err
	}

	for i, descriptor := range descriptors {
		descriptors[i] = tools.WithSchemaDefaults(descriptor)
	}

	a.registry = registry
	a.engine = provider.NewAzureEngine(provider.Config{
		Endpoint:           a.conf.AzureEndpoint,
		APIKey:             a.conf.AzureAPIKey,
		APIVersion:         a.conf.AzureAPIVersion,
		Deployment:         a.conf.AzureDeployment,
		SystemPrompt:       SystemInstruction,
		FormatPrompt:       FormatInstruction,
		ResponseSchema:     ResponseSchema(),
		ResponseSchemaName: "response_format",
		Temperature:        1,
	}, descriptors)

	return nil
}

// Cleanup releases the MCP session and drops the engine; the agent must be
// re-initialized before further use.  Cleanup after Cleanup is a no-op.
func (a *SupabaseAgent) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.engine = nil

	if a.registry == nil {
		return nil
	}

	err := a.registry.Close()
	a.registry = nil
	return err
}

// Stream runs one conversation turn for the given context identifier and
// returns the event sequence: an in-progress event per tool call and per
// tool result, then exactly one terminal event derived from the
// checkpointed state.
func (a *SupabaseAgent) Stream(
	ctx context.Context, query string, contextID string,
) (<-chan Event, error) {
	a.mu.Lock()
	engine := a.engine
	a.mu.Unlock()

	if engine == nil {
		return nil, ErrNotInitialized
	}

	out := make(chan Event, 8)

	go func() {
		defer close(out)

		var history any
		if snapshot, ok := a.state.Get(contextID); ok {
			history = snapshot[KeyMessages]
		}

		turn, err := engine.RunTurn(ctx, history, query, func(step provider.Step) {
			switch step.Kind {
			case provider.StepToolCall:
				out <- Event{Response: Response{Content: QueryingText}}
			case provider.StepToolResult:
				out <- Event{Response: Response{Content: ProcessingText}}
			}
		})

		if err != nil {
			log.Error("turn failed", "context_id", contextID, "error", err)
			out <- Event{Err: err}
			return
		}

		snapshot := map[string]any{
			KeyMessages: turn.History,
		}

		if structured := parseStructured(turn.Structured); structured != nil {
			snapshot[KeyStructuredResponse] = *structured
		}

		a.state.Set(contextID, snapshot)

		out <- Event{Response: Reduce(snapshot)}
	}()

	return out, nil
}

// parseStructured validates the raw structured response.  Anything
// malformed maps to nil so the reducer takes its fallback row.
func parseStructured(raw json.RawMessage) *ResponseFormat {
	if len(raw) == 0 {
		return nil
	}

	var structured ResponseFormat
	if err := json.Unmarshal(raw, &structured); err != nil {
		log.Warn("malformed structured response", "error", err)
		return nil
	}

	return &structured
}
