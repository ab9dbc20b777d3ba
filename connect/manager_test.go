package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
	"github.com/eyohen/splitpay/utils"
)

// scriptedRPC routes requests to per-method handlers and counts calls.
type scriptedRPC struct {
	handlers map[string]func(params ...any) (json.RawMessage, error)
	calls    map[string]int
}

func newScriptedRPC() *scriptedRPC {
	return &scriptedRPC{
		handlers: make(map[string]func(params ...any) (json.RawMessage, error)),
		calls:    make(map[string]int),
	}
}

func (s *scriptedRPC) on(method string, fn func(params ...any) (json.RawMessage, error)) {
	s.handlers[method] = fn
}

func (s *scriptedRPC) onResult(method, result string) {
	s.on(method, func(...any) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	})
}

func (s *scriptedRPC) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	s.calls[method]++
	fn, ok := s.handlers[method]
	if !ok {
		return nil, fmt.Errorf("unscripted method %s", method)
	}
	return fn(params...)
}

func testProvider(rpc provider.RPC, vendor types.Vendor) *provider.WalletProvider {
	return &provider.WalletProvider{ID: "p1", DisplayName: "Test", Vendor: vendor, RPC: rpc}
}

func TestInjectedConnectorConnect(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.onResult("eth_requestAccounts", `["0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1"]`)
	rpc.onResult("eth_chainId", `"0x2105"`)

	c := NewInjectedConnector(testProvider(rpc, types.VendorMetaMask))
	sess, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xE4d365a5a8fC0DCEE9E3C5985D7FcBab8B4A0fE1", sess.Address.Hex())
	assert.Equal(t, int64(8453), sess.ChainID)
	assert.Equal(t, types.VendorMetaMask, c.Vendor())
}

func TestInjectedConnectorNoAccounts(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.onResult("eth_requestAccounts", `[]`)

	c := NewInjectedConnector(testProvider(rpc, types.VendorUnknown))
	_, err := c.Connect(context.Background())
	require.Error(t, err)
}

func TestConnectRetriesThenFails(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.on("eth_requestAccounts", func(...any) (json.RawMessage, error) {
		return nil, errors.New("provider busy")
	})

	m := NewManager(connectTestOpts()...)
	_, err := m.Connect(context.Background(), NewInjectedConnector(testProvider(rpc, types.VendorUnknown)))
	require.Error(t, err)
	assert.Equal(t, types.ErrConnection, types.KindOf(err))
	assert.Equal(t, DefaultAttempts, rpc.calls["eth_requestAccounts"])
}

func TestConnectRecoversOnRetry(t *testing.T) {
	rpc := newScriptedRPC()
	attempts := 0
	rpc.on("eth_requestAccounts", func(...any) (json.RawMessage, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("provider busy")
		}
		return json.RawMessage(`["0x1111111111111111111111111111111111111111"]`), nil
	})
	rpc.onResult("eth_chainId", `"0x1"`)

	m := NewManager(connectTestOpts()...)
	sess, err := m.Connect(context.Background(), NewInjectedConnector(testProvider(rpc, types.VendorUnknown)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.ChainID)
	assert.Equal(t, 3, attempts)
}

func TestConnectUserRejectionIsTerminal(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.on("eth_requestAccounts", func(...any) (json.RawMessage, error) {
		return nil, &provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request"}
	})

	m := NewManager(connectTestOpts()...)
	_, err := m.Connect(context.Background(), NewInjectedConnector(testProvider(rpc, types.VendorUnknown)))
	require.Error(t, err)
	assert.Equal(t, types.ErrUserRejected, types.KindOf(err))
	// no retry after a rejection
	assert.Equal(t, 1, rpc.calls["eth_requestAccounts"])
}

func TestEnsureChainNoopWhenMatched(t *testing.T) {
	rpc := newScriptedRPC()
	m := NewManager(connectTestOpts()...)
	sess := &Session{ChainID: 8453, RPC: rpc}

	require.NoError(t, m.EnsureChain(context.Background(), sess, 8453))
	assert.Zero(t, rpc.calls["wallet_switchEthereumChain"])
}

func TestEnsureChainSwitches(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.onResult("wallet_switchEthereumChain", `null`)
	rpc.onResult("eth_chainId", `"0x89"`)

	m := NewManager(connectTestOpts()...)
	sess := &Session{ChainID: 1, RPC: rpc}

	require.NoError(t, m.EnsureChain(context.Background(), sess, 137))
	assert.Equal(t, int64(137), sess.ChainID)
}

func TestEnsureChainUnrecognizedChain(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.on("wallet_switchEthereumChain", func(...any) (json.RawMessage, error) {
		return nil, &provider.RPCError{Code: provider.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	})

	m := NewManager(connectTestOpts()...)
	sess := &Session{ChainID: 1, RPC: rpc}

	err := m.EnsureChain(context.Background(), sess, 137)
	require.Error(t, err)
	assert.Equal(t, types.ErrChainMismatch, types.KindOf(err))
	// never auto-retried
	assert.Equal(t, 1, rpc.calls["wallet_switchEthereumChain"])
}

func TestEnsureChainStaleAfterSwitch(t *testing.T) {
	rpc := newScriptedRPC()
	rpc.onResult("wallet_switchEthereumChain", `null`)
	rpc.onResult("eth_chainId", `"0x1"`)

	m := NewManager(connectTestOpts()...)
	sess := &Session{ChainID: 1, RPC: rpc}

	err := m.EnsureChain(context.Background(), sess, 137)
	require.Error(t, err)
	assert.Equal(t, types.ErrChainMismatch, types.KindOf(err))
	assert.Equal(t, int64(1), sess.ChainID)
}

type stubConnector struct {
	id     string
	vendor types.Vendor
}

func (s stubConnector) ID() string                                { return s.id }
func (s stubConnector) Vendor() types.Vendor                      { return s.vendor }
func (s stubConnector) Connect(context.Context) (*Session, error) { return nil, nil }

func TestSelectRanking(t *testing.T) {
	mm := stubConnector{id: "mm", vendor: types.VendorMetaMask}
	trust := stubConnector{id: "trust", vendor: types.VendorTrust}
	generic := stubConnector{id: "gen", vendor: types.VendorUnknown}
	all := []Connector{mm, trust, generic}

	m := NewManager()

	// inside an in-app browser the classified vendor wins over the hint
	inApp := types.WalletEnvironment{IsInAppBrowser: true, WalletType: types.VendorTrust}
	assert.Equal(t, "trust", m.Select(inApp, types.VendorMetaMask, all).ID())

	// outside, the preferredWallet hint ranks first
	outside := types.WalletEnvironment{WalletType: types.VendorUnknown}
	assert.Equal(t, "mm", m.Select(outside, types.VendorMetaMask, all).ID())

	// no hint: the generic injected connector
	assert.Equal(t, "gen", m.Select(outside, types.VendorUnknown, all).ID())

	// hint matches nothing: generic fallback again
	assert.Equal(t, "gen", m.Select(outside, types.VendorCoinbase, all).ID())

	// only vendor-specific connectors: take the first
	assert.Equal(t, "mm", m.Select(outside, types.VendorCoinbase, []Connector{mm, trust}).ID())

	assert.Nil(t, m.Select(outside, types.VendorUnknown, nil))
}

func TestFirstUseDedupe(t *testing.T) {
	m := NewManager()
	rpc := newScriptedRPC()

	s1 := &Session{ChainID: 8453, RPC: rpc}
	s2 := &Session{ChainID: 137, RPC: rpc}

	assert.True(t, m.FirstUse(s1))
	assert.False(t, m.FirstUse(s1))
	// different chain is a different key
	assert.True(t, m.FirstUse(s2))
	assert.False(t, m.FirstUse(s2))
}

// captureRecorder remembers the last label set per counter name.
type captureRecorder struct {
	counts map[string]map[string]string
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{counts: make(map[string]map[string]string)}
}

func (c *captureRecorder) IncCounter(name string, labels map[string]string) {
	c.counts[name] = labels
}

func (c *captureRecorder) ObserveLatency(string, time.Duration, map[string]string) {}

func TestConnectMetricsCarryNetwork(t *testing.T) {
	rec := newCaptureRecorder()

	rpc := newScriptedRPC()
	rpc.onResult("eth_requestAccounts", `["0x1111111111111111111111111111111111111111"]`)
	rpc.onResult("eth_chainId", `"0x2105"`)

	m := NewManager(append(connectTestOpts(), WithManagerMetrics(rec))...)
	_, err := m.Connect(context.Background(), NewInjectedConnector(testProvider(rpc, types.VendorUnknown)))
	require.NoError(t, err)
	assert.Equal(t, "base", rec.counts["connect_success"]["network"])

	failing := newScriptedRPC()
	failing.on("eth_requestAccounts", func(...any) (json.RawMessage, error) {
		return nil, errors.New("provider busy")
	})
	_, err = m.Connect(context.Background(), NewInjectedConnector(testProvider(failing, types.VendorUnknown)))
	require.Error(t, err)
	assert.Equal(t, "unknown", rec.counts["connect_failure"]["network"])
}

func connectTestOpts() []ManagerOption {
	return []ManagerOption{WithSleep(utils.NoSleep)}
}
