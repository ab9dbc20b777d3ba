package utils

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/eyohen/splitpay/types"
)

// firstParam returns the first non-empty value among the given keys.
// Older payment pages used different parameter names; all remain
// accepted.
func firstParam(values url.Values, keys ...string) string {
	for _, k := range keys {
		if v := values.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// ParseParams builds a payment intent and page hints from URL query
// parameters. Missing fields are left zero for backend resolution;
// fields that are present are syntax-checked so malformed pages fail
// here instead of mid-flow. Cross-field invariants stay with Validate.
func ParseParams(values url.Values) (*types.PaymentIntent, *types.PageHints, error) {
	intent := &types.PaymentIntent{
		PaymentID:         firstParam(values, "paymentId", "payment_id", "pid"),
		SplitterPaymentID: firstParam(values, "splitterPaymentId", "splitter_payment_id"),
		AmountDecimal:     firstParam(values, "amount", "amountDecimal"),
		AmountInWei:       firstParam(values, "amountInWei", "wei"),
		TokenSymbol:       firstParam(values, "tokenSymbol", "symbol"),
		TokenContract:     firstParam(values, "tokenContract", "token_address", "token"),
		SplitterContract:  firstParam(values, "splitterContract", "splitter"),
	}

	decimalsSet := false
	if raw := firstParam(values, "tokenDecimals", "decimals"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid tokenDecimals %q: %w", raw, err)
		}
		intent.TokenDecimals = n
		decimalsSet = true
	}
	if raw := firstParam(values, "chainId", "chain_id", "chain"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid chainId %q: %w", raw, err)
		}
		intent.ChainID = n
	}

	for i := 0; i < types.MaxRecipients; i++ {
		slot := strconv.Itoa(i + 1)
		intent.Recipients[i].Address = firstParam(values, "recipient"+slot, "r"+slot)
		if raw := firstParam(values, "recipient"+slot+"Percentage", "pct"+slot); raw != "" {
			bps, err := strconv.Atoi(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid recipient%sPercentage %q: %w", slot, raw, err)
			}
			intent.Recipients[i].PercentageBps = bps
		}
	}

	if intent.AmountDecimal != "" {
		if decimalsSet {
			// the page stated the token's decimals, so excess precision
			// is a malformed page, not a resolution gap
			if _, err := ParseAmountWithDecimals(intent.AmountDecimal, intent.TokenDecimals); err != nil {
				return nil, nil, fmt.Errorf("invalid amount %q: %w", intent.AmountDecimal, err)
			}
		} else if _, err := ValidateAmount(intent.AmountDecimal); err != nil {
			return nil, nil, fmt.Errorf("invalid amount %q: %w", intent.AmountDecimal, err)
		}
	}
	if intent.AmountInWei != "" {
		if _, err := ValidateBigInt(intent.AmountInWei); err != nil {
			return nil, nil, fmt.Errorf("invalid amountInWei %q: %w", intent.AmountInWei, err)
		}
	}
	addresses := map[string]string{
		"tokenContract":    intent.TokenContract,
		"splitterContract": intent.SplitterContract,
	}
	for i, r := range intent.Recipients {
		addresses[fmt.Sprintf("recipient%d", i+1)] = r.Address
	}
	for field, addr := range addresses {
		if addr == "" {
			continue
		}
		if err := ValidateAddress(addr); err != nil {
			return nil, nil, fmt.Errorf("invalid %s %q: %w", field, addr, err)
		}
	}

	intent.Normalize()

	hints := &types.PageHints{
		PreferredWallet: types.ParseVendor(firstParam(values, "preferredWallet", "wallet")),
	}
	if raw := firstParam(values, "isMobile", "mobile"); raw != "" {
		mobile, err := strconv.ParseBool(raw)
		if err == nil {
			hints.IsMobile = mobile
		}
	}

	return intent, hints, nil
}
