// Package payment orchestrates the split-payment transaction sequence
// against a connected wallet provider: balance and allowance reads,
// conditional approval, simulation, execution and the best-effort
// backend notification.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eyohen/splitpay/provider"
)

// chainClient issues eth_* requests through the wallet provider. The
// provider signs writes; reads go to whatever RPC the wallet fronts.
type chainClient struct {
	rpc provider.RPC
}

type callMsg struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

func (c *chainClient) call(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	msg := callMsg{To: to.Hex(), Data: hexutil.Encode(data)}
	if (from != common.Address{}) {
		msg.From = from.Hex()
	}
	raw, err := c.rpc.Request(ctx, "eth_call", msg, "latest")
	if err != nil {
		return nil, err
	}
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil, fmt.Errorf("malformed eth_call result: %w", err)
	}
	return hexutil.Decode(hexResult)
}

func (c *chainClient) send(ctx context.Context, from, to common.Address, data []byte) (common.Hash, error) {
	msg := callMsg{From: from.Hex(), To: to.Hex(), Data: hexutil.Encode(data)}
	raw, err := c.rpc.Request(ctx, "eth_sendTransaction", msg)
	if err != nil {
		return common.Hash{}, err
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("malformed eth_sendTransaction result: %w", err)
	}
	return common.HexToHash(hash), nil
}

// receiptLite is the slice of a transaction receipt the flow inspects.
type receiptLite struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

func (r *receiptLite) succeeded() bool {
	return r.Status == "0x1"
}

// receipt returns (nil, nil) while the transaction is still pending.
func (c *chainClient) receipt(ctx context.Context, hash common.Hash) (*receiptLite, error) {
	raw, err := c.rpc.Request(ctx, "eth_getTransactionReceipt", hash.Hex())
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var rec receiptLite
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("malformed receipt: %w", err)
	}
	return &rec, nil
}

// revertReason digs the solidity revert string out of a provider error,
// when the provider forwarded the return data.
func revertReason(err error) string {
	var re *provider.RPCError
	if !errors.As(err, &re) || re.Data == nil {
		return err.Error()
	}
	hexData, ok := re.Data.(string)
	if !ok {
		return err.Error()
	}
	data, derr := hexutil.Decode(hexData)
	if derr != nil {
		return err.Error()
	}
	reason, derr := abi.UnpackRevert(data)
	if derr != nil {
		return err.Error()
	}
	return reason
}
