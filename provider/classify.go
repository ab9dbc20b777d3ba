package provider

import (
	"strings"

	"github.com/eyohen/splitpay/types"
)

// userAgentVendors maps UA substrings to vendors. In-app wallet
// browsers that do not self-identify through flags usually still stamp
// the user agent.
var userAgentVendors = []struct {
	needle string
	vendor types.Vendor
}{
	{"MetaMaskMobile", types.VendorMetaMask},
	{"MetaMask", types.VendorMetaMask},
	{"Trust", types.VendorTrust},
	{"TrustWallet", types.VendorTrust},
	{"CoinbaseWallet", types.VendorCoinbase},
	{"CoinbaseBrowser", types.VendorCoinbase},
}

var mobileUANeedles = []string{"Android", "iPhone", "iPad", "Mobile"}

// Classify derives the wallet environment from a discovered provider,
// the co-mounted provider flags, the user agent and the preferredWallet
// URL hint. It performs no I/O and is deterministic in its inputs.
//
// Precedence, highest first: the provider's own vendor identity, a
// vendor match in the co-mounted array, a user-agent substring, and
// finally the URL hint combined with the presence of any provider.
func Classify(p *WalletProvider, coMounted []VendorFlags, userAgent string, hint types.Vendor) types.WalletEnvironment {
	env := types.WalletEnvironment{
		IsMobile:    isMobileUA(userAgent),
		WalletType:  types.VendorUnknown,
		HasProvider: p != nil,
	}

	// (1) vendor identity carried by the provider object itself
	if p != nil && p.Vendor != types.VendorUnknown && p.Vendor != "" {
		env.WalletType = p.Vendor
		env.IsInAppBrowser = true
		return env
	}

	// (2) vendor match inside the co-mounted provider array
	for _, flags := range coMounted {
		if v := ProbeVendor(flags); v != types.VendorUnknown {
			env.WalletType = v
			env.IsInAppBrowser = env.HasProvider
			return env
		}
	}

	// (3) user-agent substring
	for _, ua := range userAgentVendors {
		if strings.Contains(userAgent, ua.needle) {
			env.WalletType = ua.vendor
			env.IsInAppBrowser = env.HasProvider
			return env
		}
	}

	// (4) last resort: explicit hint plus presence of any provider.
	// Some mobile wallet browsers do not self-identify at all, so the
	// hint is trusted for the wallet type but not for in-app detection.
	if hint != types.VendorUnknown && hint != "" && env.HasProvider {
		env.WalletType = hint
	}
	return env
}

func isMobileUA(userAgent string) bool {
	for _, needle := range mobileUANeedles {
		if strings.Contains(userAgent, needle) {
			return true
		}
	}
	return false
}
