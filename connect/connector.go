// Package connect selects a wallet connector for the classified
// environment and drives the connection state machine: bounded connect
// retries, then chain negotiation.
package connect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
)

// Session is an established wallet connection. The RPC reference is
// borrowed from the registry's provider.
type Session struct {
	Address common.Address
	ChainID int64
	RPC     provider.RPC
}

// Connector establishes a wallet session. Implementations wrap one
// discovered provider or one vendor-specific deep link.
type Connector interface {
	ID() string
	Vendor() types.Vendor
	Connect(ctx context.Context) (*Session, error)
}

// InjectedConnector connects through a discovered provider using the
// standard eth_requestAccounts handshake.
type InjectedConnector struct {
	p *provider.WalletProvider
}

var _ Connector = (*InjectedConnector)(nil)

func NewInjectedConnector(p *provider.WalletProvider) *InjectedConnector {
	return &InjectedConnector{p: p}
}

func (c *InjectedConnector) ID() string {
	return "injected:" + c.p.ID
}

func (c *InjectedConnector) Vendor() types.Vendor {
	return c.p.Vendor
}

func (c *InjectedConnector) Connect(ctx context.Context) (*Session, error) {
	raw, err := c.p.RPC.Request(ctx, "eth_requestAccounts")
	if err != nil {
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("malformed eth_requestAccounts result: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("wallet returned no accounts")
	}

	chainID, err := currentChainID(ctx, c.p.RPC)
	if err != nil {
		return nil, err
	}

	return &Session{
		Address: common.HexToAddress(accounts[0]),
		ChainID: chainID,
		RPC:     c.p.RPC,
	}, nil
}

func currentChainID(ctx context.Context, rpc provider.RPC) (int64, error) {
	raw, err := rpc.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	var hexID string
	if err := json.Unmarshal(raw, &hexID); err != nil {
		return 0, fmt.Errorf("malformed eth_chainId result: %w", err)
	}
	id, err := hexutil.DecodeUint64(hexID)
	if err != nil {
		return 0, fmt.Errorf("bad chain id %q: %w", hexID, err)
	}
	return int64(id), nil
}
