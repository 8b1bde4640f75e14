package tools

// Registry is the client side of the remote MCP tool registry.  It connects
// over streamable HTTP with a bearer credential, lists the tools the server
// offers and exposes each one as a Descriptor whose Invoke forwards to
// tools/call on the live session.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// InvokeFunc executes one tool call.  Failures from the underlying session
// propagate unchanged to the caller.
type InvokeFunc func(ctx context.Context, args map[string]any) (string, error)

// Descriptor is metadata plus an invocation function describing one callable
// capability offered to the agent.  Descriptors are immutable once fetched;
// wrappers produce new descriptors rather than mutating in place.
type Descriptor struct {
	Tool   mcp.Tool
	Invoke InvokeFunc
}

type Registry struct {
	url    string
	apiKey string
	client *client.Client
}

type RegistryOption func(*Registry)

func NewRegistry(url string, options ...RegistryOption) *Registry {
	registry := &Registry{
		url: url,
	}

	for _, option := range options {
		option(registry)
	}

	return registry
}

// WithBearerToken attaches an Authorization header to every request the
// underlying transport makes.
func WithBearerToken(token string) RegistryOption {
	return func(r *Registry) {
		r.apiKey = token
	}
}

// Connect establishes the MCP session.  Calling Connect on an already
// connected registry is a no-op.
func (r *Registry) Connect(ctx context.Context) error {
	if r.client != nil {
		return nil
	}

	log.Info("initializing MCP client", "url", r.url)

	headers := map[string]string{}
	if r.apiKey != "" {
		headers["Authorization"] = "Bearer " + r.apiKey
	}

	c, err := client.NewStreamableHttpClient(
		r.url, transport.WithHTTPHeaders(headers),
	)

	if err != nil {
		return fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP transport: %w", err)
	}

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "supabase-a2a",
		Version: "1.0.0",
	}
	initRequest.Params.Capabilities = mcp.ClientCapabilities{}

	serverInfo, err := c.Initialize(ctx, initRequest)
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	log.Info("connected to MCP server",
		"serverName", serverInfo.ServerInfo.Name,
		"serverVersion", serverInfo.ServerInfo.Version,
	)

	r.client = c
	return nil
}

// Descriptors fetches the tool list from the registry.  Each descriptor's
// Invoke calls the tool through the registry's session.
func (r *Registry) Descriptors(ctx context.Context) ([]Descriptor, error) {
	if r.client == nil {
		return nil, fmt.Errorf("registry not connected")
	}

	list, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	out := make([]Descriptor, 0, len(list.Tools))
	for _, tool := range list.Tools {
		name := tool.Name
		out = append(out, Descriptor{
			Tool: tool,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return r.call(ctx, name, args)
			},
		})
	}

	log.Info("fetched tool descriptors", "count", len(out))
	return out, nil
}

func (r *Registry) call(ctx context.Context, name string, args map[string]any) (string, error) {
	callToolRequest := mcp.CallToolRequest{}
	callToolRequest.Params.Name = name
	callToolRequest.Params.Arguments = args

	callToolResult, err := r.client.CallTool(ctx, callToolRequest)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	if len(callToolResult.Content) == 0 {
		return "[empty tool result]", nil
	}

	firstContent := callToolResult.Content[0]
	if textContent, ok := firstContent.(mcp.TextContent); ok {
		return textContent.Text, nil
	}

	jsonResult, err := json.Marshal(firstContent)
	if err != nil {
		log.Warn("failed to marshal tool result content", "error", err)
		return "[error marshalling result]", nil
	}

	return string(jsonResult), nil
}

// Close releases the underlying MCP session.  The Supabase MCP server does
// not support session termination via DELETE; the transport treats that as a
// clean close.  Close after Close is a no-op.
func (r *Registry) Close() error {
	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	return err
}
