package service

// A small, self-contained JSON-RPC 2.0 endpoint.  It is not a full-fledged
// framework; the goal is to keep the amount of required code minimal yet be
// sufficient for typical agent-to-agent interactions.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/theapemachine/supabase-a2a/pkg/errors"
	"github.com/theapemachine/supabase-a2a/pkg/jsonrpc"
)

// HandlerFunc processes the raw params field and returns a result or a
// *errors.RpcError.  Returning (nil, nil) is treated as a null result.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *errors.RpcError)

// RPCServer multiplexes JSON-RPC method names to handler functions.
type RPCServer struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewRPCServer() *RPCServer {
	return &RPCServer{
		handlers: make(map[string]HandlerFunc),
	}
}

func (s *RPCServer) Register(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *RPCServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, nil, errors.ErrParseError)
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		respondError(w, nil, errors.ErrInvalidRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	// Batch requests start with '['.
	if body[0] == '[' {
		var batch []jsonrpc.Request
		if err := json.Unmarshal(body, &batch); err != nil {
			respondError(w, nil, errors.ErrParseError)
			return
		}

		var responses []jsonrpc.Response
		for _, req := range batch {
			resp := s.handle(r.Context(), &req)
			// Notifications have no ID, so no response is owed.
			if len(req.ID) != 0 {
				responses = append(responses, resp)
			}
		}

		if len(responses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		_ = json.NewEncoder(w).Encode(responses)
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, nil, errors.ErrParseError)
		return
	}

	resp := s.handle(r.Context(), &req)
	if len(req.ID) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func (s *RPCServer) handle(ctx context.Context, req *jsonrpc.Request) jsonrpc.Response {
	if req.JSONRPC != "2.0" {
		return newErrorResponse(req.ID, errors.ErrInvalidRequest)
	}

	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()

	if !ok {
		return newErrorResponse(req.ID, errors.ErrMethodNotFound)
	}

	result, rpcErr := h(ctx, req.Params)
	if rpcErr != nil {
		return newErrorResponse(req.ID, rpcErr)
	}

	return jsonrpc.Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	}
}

func newErrorResponse(id json.RawMessage, e *errors.RpcError) jsonrpc.Response {
	if e == nil {
		e = errors.ErrInternal
	}

	return jsonrpc.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   e,
	}
}

func respondError(w http.ResponseWriter, id json.RawMessage, e *errors.RpcError) {
	_ = json.NewEncoder(w).Encode(newErrorResponse(id, e))
}
