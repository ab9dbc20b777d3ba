// Package types holds the shared data model for the splitpay client:
// payment intents, wallet environment descriptors, orchestration states
// and the error taxonomy.
package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DefaultTokenDecimals is assumed when the intent does not carry an
// explicit decimals value (USDC-style tokens).
const DefaultTokenDecimals = 6

// BpsDenominator is the basis-point scale: 10000 == 100%.
const BpsDenominator = 10000

// MaxRecipients is fixed by the splitter contract signature.
const MaxRecipients = 3

var validate = validator.New()

// Vendor identifies a wallet application. It is a closed set; anything
// the capability probe cannot name is Unknown.
type Vendor string

const (
	VendorMetaMask Vendor = "metamask"
	VendorTrust    Vendor = "trust"
	VendorCoinbase Vendor = "coinbase"
	VendorUnknown  Vendor = "unknown"
)

func (v Vendor) String() string {
	return string(v)
}

// ParseVendor maps a free-form hint (e.g. the preferredWallet URL value)
// onto the closed vendor set.
func ParseVendor(s string) Vendor {
	switch s {
	case "metamask", "MetaMask":
		return VendorMetaMask
	case "trust", "trustwallet", "Trust":
		return VendorTrust
	case "coinbase", "coinbasewallet", "Coinbase":
		return VendorCoinbase
	default:
		return VendorUnknown
	}
}

// WalletEnvironment describes where the page is running. It is derived
// once per page load by provider.Classify and treated as immutable.
type WalletEnvironment struct {
	IsMobile       bool   `json:"isMobile"`
	IsInAppBrowser bool   `json:"isInAppBrowser"`
	WalletType     Vendor `json:"walletType"`
	HasProvider    bool   `json:"hasProvider"`
}

// PageHints carries the caller-supplied environment hints that ride
// alongside the intent in the page parameters.
type PageHints struct {
	PreferredWallet Vendor
	IsMobile        bool
}

// Recipient is one share of a split payment.
type Recipient struct {
	Address       string `json:"address" validate:"required,eth_addr"`
	PercentageBps int    `json:"percentageBps" validate:"min=0,max=10000"`
}

// PaymentIntent is the fully resolved input for one split payment.
// AmountInWei, when present, is the sole source of truth for the
// on-chain amount; otherwise AmountDecimal scaled by TokenDecimals is.
type PaymentIntent struct {
	PaymentID         string                   `json:"paymentId" validate:"required"`
	SplitterPaymentID string                   `json:"splitterPaymentId,omitempty"`
	AmountDecimal     string                   `json:"amountDecimal,omitempty"`
	TokenDecimals     int                      `json:"tokenDecimals,omitempty"`
	AmountInWei       string                   `json:"amountInWei,omitempty"`
	TokenSymbol       string                   `json:"tokenSymbol,omitempty"`
	TokenContract     string                   `json:"tokenContract" validate:"required,eth_addr"`
	SplitterContract  string                   `json:"splitterContract" validate:"required,eth_addr"`
	ChainID           int64                    `json:"chainId" validate:"required,gt=0"`
	Recipients        [MaxRecipients]Recipient `json:"recipients"`
}

// Normalize fills defaulted fields in place. Safe to call repeatedly.
func (p *PaymentIntent) Normalize() {
	if p.TokenDecimals == 0 {
		p.TokenDecimals = DefaultTokenDecimals
	}
	if p.SplitterPaymentID == "" {
		p.SplitterPaymentID = p.PaymentID
	}
}

// Validate checks every invariant the orchestrator relies on. A failure
// here is fatal for the flow; nothing is retried.
func (p *PaymentIntent) Validate() error {
	p.Normalize()

	if err := validate.Struct(p); err != nil {
		return &PaymentError{
			Kind:    ErrParameterValidation,
			Message: fmt.Sprintf("invalid payment intent: %v", err),
			Cause:   err,
		}
	}

	if p.AmountInWei == "" && p.AmountDecimal == "" {
		return &PaymentError{
			Kind:    ErrParameterValidation,
			Message: "payment intent needs amountInWei or amountDecimal",
		}
	}

	sum := 0
	for i, r := range p.Recipients {
		if err := validate.Struct(r); err != nil {
			return &PaymentError{
				Kind:    ErrParameterValidation,
				Message: fmt.Sprintf("invalid recipient %d: %v", i+1, err),
				Cause:   err,
			}
		}
		sum += r.PercentageBps
	}
	if sum != BpsDenominator {
		return &PaymentError{
			Kind:    ErrParameterValidation,
			Message: fmt.Sprintf("recipient percentages sum to %d bps, want %d", sum, BpsDenominator),
		}
	}

	if _, err := p.AmountWei(); err != nil {
		return err
	}
	return nil
}

// AmountWei resolves the canonical on-chain amount as an exact integer.
func (p *PaymentIntent) AmountWei() (*big.Int, error) {
	if p.AmountInWei != "" {
		wei, ok := new(big.Int).SetString(p.AmountInWei, 10)
		if !ok || wei.Sign() < 0 {
			return nil, &PaymentError{
				Kind:    ErrParameterValidation,
				Message: fmt.Sprintf("invalid amountInWei %q", p.AmountInWei),
			}
		}
		return wei, nil
	}

	decimals := p.TokenDecimals
	if decimals == 0 {
		decimals = DefaultTokenDecimals
	}
	dec, err := decimal.NewFromString(p.AmountDecimal)
	if err != nil {
		return nil, &PaymentError{
			Kind:    ErrParameterValidation,
			Message: fmt.Sprintf("invalid amountDecimal %q", p.AmountDecimal),
			Cause:   err,
		}
	}
	if dec.IsNegative() {
		return nil, &PaymentError{
			Kind:    ErrParameterValidation,
			Message: "amountDecimal cannot be negative",
		}
	}
	scaled := dec.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, &PaymentError{
			Kind:    ErrParameterValidation,
			Message: fmt.Sprintf("amount %s does not fit %d decimals", p.AmountDecimal, decimals),
		}
	}
	return scaled.BigInt(), nil
}

// SplitCall is the canonical splitPayment argument tuple. Field order
// matches the contract signature exactly; reordering silently misroutes
// funds.
type SplitCall struct {
	Token                common.Address
	Amount               *big.Int
	PaymentID            string
	Recipient1           common.Address
	Recipient2           common.Address
	Recipient3           common.Address
	Recipient1Percentage *big.Int
	Recipient2Percentage *big.Int
	Recipient3Percentage *big.Int
}

// BuildSplitCall sources the call tuple from a validated intent.
func BuildSplitCall(p *PaymentIntent) (*SplitCall, error) {
	amount, err := p.AmountWei()
	if err != nil {
		return nil, err
	}
	pid := p.SplitterPaymentID
	if pid == "" {
		pid = p.PaymentID
	}
	return &SplitCall{
		Token:                common.HexToAddress(p.TokenContract),
		Amount:               amount,
		PaymentID:            pid,
		Recipient1:           common.HexToAddress(p.Recipients[0].Address),
		Recipient2:           common.HexToAddress(p.Recipients[1].Address),
		Recipient3:           common.HexToAddress(p.Recipients[2].Address),
		Recipient1Percentage: big.NewInt(int64(p.Recipients[0].PercentageBps)),
		Recipient2Percentage: big.NewInt(int64(p.Recipients[1].PercentageBps)),
		Recipient3Percentage: big.NewInt(int64(p.Recipients[2].PercentageBps)),
	}, nil
}

// Result is the terminal outcome of one orchestrated payment.
type Result struct {
	State           State      `json:"state"`
	TxHash          string     `json:"txHash,omitempty"`
	ApprovalTxHash  string     `json:"approvalTxHash,omitempty"`
	Network         string     `json:"network,omitempty"`
	Sender          string     `json:"sender,omitempty"`
	NotifiedBackend bool       `json:"notifiedBackend"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Err             error      `json:"-"`
}
