package a2a

// Client is a high‑level façade that hides the raw JSON‑RPC wiring and
// exposes convenience methods that map directly to the A2A task operations.
// It intentionally stays thin – all heavy lifting is performed by the
// RPCClient – but provides a single entry point for interacting with a
// remote agent.

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/theapemachine/supabase-a2a/pkg/jsonrpc"
)

// DefaultRPCPath is appended to the AgentCard.URL when the caller does not
// specify a fully‑qualified RPC endpoint.
const DefaultRPCPath = "/rpc"

// DefaultSSEPath is appended to the base URL when streaming updates are
// requested.
const DefaultSSEPath = "/events"

type Client struct {
	Card AgentCard

	rpcEndpoint string
	sseEndpoint string

	rpc *jsonrpc.RPCClient
}

// NewClientFromCard constructs a Client from an already‑fetched AgentCard.
// No network requests are performed.
func NewClientFromCard(card AgentCard) *Client {
	base := strings.TrimRight(card.URL, "/")
	c := &Client{
		Card:        card,
		rpcEndpoint: base + DefaultRPCPath,
		sseEndpoint: base + DefaultSSEPath,
	}
	c.rpc = jsonrpc.NewRPCClient(c.rpcEndpoint)
	return c
}

// FetchAgentCard retrieves the published agent card from the well‑known path
// and constructs a Client instance.
func FetchAgentCard(ctx context.Context, baseURL string) (*Client, error) {
	wellKnown := strings.TrimRight(baseURL, "/") + "/.well-known/agent.json"
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch agent card: HTTP %d", resp.StatusCode)
	}
	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, err
	}
	return NewClientFromCard(card), nil
}

// Send issues a tasks/send request and returns the resulting Task.
func (c *Client) Send(ctx context.Context, params TaskSendParams) (*Task, error) {
	var task Task
	if err := c.rpc.Call(ctx, "tasks/send", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Get retrieves a task.  A nil historyLength returns the full history.
func (c *Client) Get(ctx context.Context, id string, historyLength *int) (*Task, error) {
	var task Task
	if err := c.rpc.Call(ctx, "tasks/get", TaskQueryParams{ID: id, HistoryLength: historyLength}, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Cancel cancels a running task.
func (c *Client) Cancel(ctx context.Context, id string) error {
	params := struct {
		ID string `json:"id"`
	}{ID: id}
	return c.rpc.Call(ctx, "tasks/cancel", params, nil)
}

// SetPush sets or updates the push‑notification config.
func (c *Client) SetPush(ctx context.Context, cfg TaskPushNotificationConfig) error {
	return c.rpc.Call(ctx, "tasks/pushNotification/set", cfg, nil)
}

// GetPush fetches the push‑notification config for a task.
func (c *Client) GetPush(ctx context.Context, id string) (*TaskPushNotificationConfig, error) {
	params := struct {
		ID string `json:"id"`
	}{ID: id}

	var out TaskPushNotificationConfig
	if err := c.rpc.Call(ctx, "tasks/pushNotification/get", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendStream sends tasks/sendSubscribe and then follows the SSE stream,
// dispatching events to the provided callbacks.  It returns nil once the
// agent reports a final status update.  Note: this performs a best‑effort
// SSE parse; applications that need reconnection logic should wrap it.
func (c *Client) SendStream(
	ctx context.Context,
	params TaskSendParams,
	onStatus func(TaskStatusUpdateEvent),
	onArtifact func(TaskArtifactUpdateEvent),
) error {
	payload := jsonrpc.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tasks/sendSubscribe",
	}
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	payload.Params = b

	body, _ := json.Marshal(payload)

	// Subscribe to the event stream before kicking the task off so no
	// events are lost between the RPC response and the stream attach.  The
	// task scope keeps other tasks' events off this stream.
	streamURL := c.sseEndpoint + "?task=" + url.QueryEscape(params.ID)
	streamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}
	streamResp, err := http.DefaultClient.Do(streamReq)
	if err != nil {
		return err
	}
	defer streamResp.Body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream request failed: HTTP %d", resp.StatusCode)
	}

	reader := bufio.NewReader(streamResp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") { // comments / keep‑alive
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		// Determine event type by probing presence of fields.
		if strings.Contains(data, "\"artifact\"") {
			var evt TaskArtifactUpdateEvent
			if err := json.Unmarshal([]byte(data), &evt); err == nil && onArtifact != nil {
				onArtifact(evt)
			}
			continue
		}

		var evt TaskStatusUpdateEvent
		if err := json.Unmarshal([]byte(data), &evt); err == nil && onStatus != nil {
			onStatus(evt)
			if evt.Final {
				return nil
			}
		}
	}
}
