package provider

import (
	"github.com/eyohen/splitpay/types"
)

// WalletProvider is a discovered wallet. The registry owns it for the
// page lifetime; the connection manager only borrows a reference.
type WalletProvider struct {
	ID          string
	DisplayName string
	Vendor      types.Vendor
	RPC         RPC
}

// VendorFlags are the duck-typed booleans legacy injections expose on
// the global provider object.
type VendorFlags struct {
	IsMetaMask       bool `json:"isMetaMask"`
	IsTrust          bool `json:"isTrust"`
	IsCoinbaseWallet bool `json:"isCoinbaseWallet"`
}

// ProbeVendor collapses duck-typed flags into the closed vendor union.
// Trust and Coinbase are checked before MetaMask because both also set
// isMetaMask for compatibility.
func ProbeVendor(f VendorFlags) types.Vendor {
	switch {
	case f.IsTrust:
		return types.VendorTrust
	case f.IsCoinbaseWallet:
		return types.VendorCoinbase
	case f.IsMetaMask:
		return types.VendorMetaMask
	default:
		return types.VendorUnknown
	}
}

// InjectedProvider mirrors a window.ethereum-style legacy injection:
// an RPC surface plus its self-identification flags.
type InjectedProvider struct {
	RPC   RPC
	Flags VendorFlags
}

// LegacySlot reads the global provider slot and any co-mounted provider
// array. Legacy wallets do not participate in the announce protocol and
// may inject tens of seconds after page load on mobile, so the registry
// polls this on an interval.
type LegacySlot interface {
	// Current returns the provider mounted at the global slot, if any.
	Current() (InjectedProvider, bool)
	// CoMounted returns providers co-mounted alongside the slot.
	CoMounted() []InjectedProvider
}

// EmptySlot is a LegacySlot with nothing injected.
type EmptySlot struct{}

func (EmptySlot) Current() (InjectedProvider, bool) { return InjectedProvider{}, false }
func (EmptySlot) CoMounted() []InjectedProvider     { return nil }

// StaticSlot serves fixed injections; the zero value is empty. Useful
// for embedding hosts and tests.
type StaticSlot struct {
	Provider *InjectedProvider
	Mounted  []InjectedProvider
}

func (s *StaticSlot) Current() (InjectedProvider, bool) {
	if s == nil || s.Provider == nil {
		return InjectedProvider{}, false
	}
	return *s.Provider, true
}

func (s *StaticSlot) CoMounted() []InjectedProvider {
	if s == nil {
		return nil
	}
	return s.Mounted
}
