package service

// A2AServer bundles JSON-RPC, SSE, push notifications and a TaskManager to
// expose a fully functional A2A server with minimal glue code.  Callers
// create the server, then mount the HTTP handlers returned by Handlers() on
// their preferred mux.

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/supabase-a2a/pkg/a2a"
	"github.com/theapemachine/supabase-a2a/pkg/errors"
	"github.com/theapemachine/supabase-a2a/pkg/push"
	"github.com/theapemachine/supabase-a2a/pkg/service/sse"
)

// A2AServer is safe for concurrent use because RPCServer, Broker and the
// push Service are.
type A2AServer struct {
	Card        a2a.AgentCard
	TaskManager TaskManager

	rpc    *RPCServer
	broker *sse.Broker
	push   *push.Service
}

// NewA2AServer constructs a server with the supplied TaskManager.  The
// caller must later mount Handlers().  This decouples protocol concerns from
// HTTP routing frameworks.
func NewA2AServer(card a2a.AgentCard, tm TaskManager, pushSvc *push.Service) *A2AServer {
	srv := &A2AServer{
		Card:        card,
		TaskManager: tm,
		rpc:         NewRPCServer(),
		broker:      sse.NewBroker(),
		push:        pushSvc,
	}
	srv.registerRPCHandlers()
	return srv
}

// Handlers returns a map of path to http.Handler to be mounted by the host
// application:
//
//	/rpc                       – JSON-RPC 2.0
//	/events                    – SSE stream
//	/.well-known/agent.json    – agent card discovery
//	/.well-known/jwks.json     – push notification signing keys
func (s *A2AServer) Handlers() map[string]http.Handler {
	handlers := map[string]http.Handler{
		"/rpc":                    s.rpc,
		"/events":                 http.HandlerFunc(s.broker.Subscribe),
		"/.well-known/agent.json": http.HandlerFunc(s.agentCardHandler),
	}

	if s.push != nil {
		handlers["/.well-known/jwks.json"] = s.push.JWKSHandler()
	}

	return handlers
}

// Shutdown disconnects all SSE subscribers.
func (s *A2AServer) Shutdown() {
	s.broker.Close()
}

func (s *A2AServer) agentCardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(s.Card); err != nil {
		log.Error("failed to encode agent card", "error", err)
	}
}

func (s *A2AServer) registerRPCHandlers() {
	s.rpc.Register("tasks/send", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskSendParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.ErrInvalidParams
		}

		return s.TaskManager.SendTask(ctx, params)
	})

	s.rpc.Register("tasks/get", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskQueryParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.ErrInvalidParams
		}

		return s.TaskManager.GetTask(ctx, params)
	})

	s.rpc.Register("tasks/cancel", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.ErrInvalidParams
		}

		return s.TaskManager.CancelTask(ctx, params.ID)
	})

	s.rpc.Register("tasks/sendSubscribe", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		var params a2a.TaskSendParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.ErrInvalidParams
		}

		stream, rpcErr := s.TaskManager.StreamTask(context.WithoutCancel(ctx), params)
		if rpcErr != nil {
			return nil, rpcErr
		}

		// Consume the first event to return immediately per JSON-RPC
		// semantics; the rest is forwarded over SSE.
		var first any
		select {
		case first = <-stream:
		default:
			first = a2a.TaskStatusUpdateEvent{
				ID:     params.ID,
				Status: a2a.TaskStatus{State: a2a.TaskStateWorking},
				Final:  false,
			}
		}

		go func() {
			for event := range stream {
				if err := s.broker.Broadcast(params.ID, event); err != nil {
					log.Error("failed to broadcast task event", "error", err)
				}
			}
		}()

		return first, nil
	})

	s.rpc.Register("tasks/pushNotification/set", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		if s.push == nil {
			return nil, errors.ErrNotImplemented
		}

		var config a2a.TaskPushNotificationConfig
		if err := json.Unmarshal(raw, &config); err != nil {
			return nil, errors.ErrInvalidParams
		}

		if config.ID == "" || config.PushNotificationConfig.URL == "" {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"push notification config requires a task id and a url",
			)
		}

		if !s.push.VerifyURL(config.PushNotificationConfig.URL) {
			return nil, errors.ErrInvalidParams.WithMessagef(
				"push notification url is not reachable: %s", config.PushNotificationConfig.URL,
			)
		}

		s.push.SetConfig(&config)
		return config, nil
	})

	s.rpc.Register("tasks/pushNotification/get", func(ctx context.Context, raw json.RawMessage) (any, *errors.RpcError) {
		if s.push == nil {
			return nil, errors.ErrNotImplemented
		}

		var params struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, errors.ErrInvalidParams
		}

		config, exists := s.push.GetConfig(params.ID)
		if !exists {
			return nil, errors.ErrPushNotificationConfigNotFound
		}

		return config, nil
	})
}
