// Package provider discovers and abstracts wallet providers: the
// request-based RPC bridge between a page and a wallet, the
// announce/request discovery protocol with its legacy polling fallback,
// and the pure wallet-environment classifier.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// RPC is the request surface a wallet provider exposes to the page.
// Every on-chain read and write in this module goes through it.
type RPC interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// RPCError mirrors an EIP-1193 provider error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider rpc error %d: %s", e.Code, e.Message)
}

// EIP-1193 / EIP-3085 provider error codes the flow branches on.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// IsUserRejected reports whether the user declined the request in the
// wallet UI. This is always terminal; retrying would just re-prompt.
func IsUserRejected(err error) bool {
	var re *RPCError
	return errors.As(err, &re) && re.Code == CodeUserRejected
}

// IsUnrecognizedChain reports whether the wallet does not know the
// requested chain (wallet_switchEthereumChain failure mode).
func IsUnrecognizedChain(err error) bool {
	var re *RPCError
	return errors.As(err, &re) && re.Code == CodeUnrecognizedChain
}
