package jsonrpc

import (
	"github.com/theapemachine/supabase-a2a/pkg/errors"
)

type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *errors.RpcError `json:"error,omitempty"`
}
