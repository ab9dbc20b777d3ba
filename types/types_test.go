package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntent() *PaymentIntent {
	return &PaymentIntent{
		PaymentID:        "order-1",
		AmountDecimal:    "100",
		TokenDecimals:    6,
		TokenContract:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		SplitterContract: "0x1234567890123456789012345678901234567890",
		ChainID:          8453,
		Recipients: [MaxRecipients]Recipient{
			{Address: "0x1111111111111111111111111111111111111111", PercentageBps: 5000},
			{Address: "0x2222222222222222222222222222222222222222", PercentageBps: 3000},
			{Address: "0x3333333333333333333333333333333333333333", PercentageBps: 2000},
		},
	}
}

func TestValidateAcceptsFullIntent(t *testing.T) {
	require.NoError(t, validIntent().Validate())
}

func TestNormalizeDefaults(t *testing.T) {
	p := validIntent()
	p.TokenDecimals = 0
	p.SplitterPaymentID = ""
	p.Normalize()

	assert.Equal(t, DefaultTokenDecimals, p.TokenDecimals)
	assert.Equal(t, p.PaymentID, p.SplitterPaymentID)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PaymentIntent)
	}{
		{"missing payment id", func(p *PaymentIntent) { p.PaymentID = "" }},
		{"bad token address", func(p *PaymentIntent) { p.TokenContract = "0xnothex" }},
		{"bad splitter address", func(p *PaymentIntent) { p.SplitterContract = "1234" }},
		{"zero chain id", func(p *PaymentIntent) { p.ChainID = 0 }},
		{"no amount at all", func(p *PaymentIntent) { p.AmountDecimal = ""; p.AmountInWei = "" }},
		{"missing recipient", func(p *PaymentIntent) { p.Recipients[2].Address = "" }},
		{"bps sum short", func(p *PaymentIntent) { p.Recipients[0].PercentageBps = 4999 }},
		{"bps sum over", func(p *PaymentIntent) { p.Recipients[0].PercentageBps = 5001 }},
		{"negative amount", func(p *PaymentIntent) { p.AmountDecimal = "-5" }},
		{"amount too precise", func(p *PaymentIntent) { p.AmountDecimal = "0.0000001" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validIntent()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.Equal(t, ErrParameterValidation, KindOf(err))
		})
	}
}

func TestAmountWeiScalesDecimals(t *testing.T) {
	p := validIntent()
	p.AmountDecimal = "100"
	p.TokenDecimals = 6

	wei, err := p.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, "100000000", wei.String())
}

func TestAmountWeiExactFraction(t *testing.T) {
	p := validIntent()
	p.AmountDecimal = "0.123456"

	wei, err := p.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, "123456", wei.String())
}

func TestAmountWeiPrefersExplicitWei(t *testing.T) {
	p := validIntent()
	p.AmountDecimal = "100"
	p.AmountInWei = "42"

	wei, err := p.AmountWei()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), wei)
}

func TestAmountWeiRejectsBadWei(t *testing.T) {
	p := validIntent()
	p.AmountInWei = "0x2a"

	_, err := p.AmountWei()
	require.Error(t, err)
	assert.Equal(t, ErrParameterValidation, KindOf(err))
}

func TestBuildSplitCallFieldOrder(t *testing.T) {
	p := validIntent()
	p.SplitterPaymentID = "splitter-9"

	call, err := BuildSplitCall(p)
	require.NoError(t, err)

	assert.Equal(t, "splitter-9", call.PaymentID)
	assert.Equal(t, "100000000", call.Amount.String())
	assert.Equal(t, p.Recipients[0].Address, call.Recipient1.Hex())
	assert.Equal(t, p.Recipients[1].Address, call.Recipient2.Hex())
	assert.Equal(t, p.Recipients[2].Address, call.Recipient3.Hex())
	assert.Equal(t, int64(5000), call.Recipient1Percentage.Int64())
	assert.Equal(t, int64(3000), call.Recipient2Percentage.Int64())
	assert.Equal(t, int64(2000), call.Recipient3Percentage.Int64())
}

func TestParseVendor(t *testing.T) {
	assert.Equal(t, VendorMetaMask, ParseVendor("metamask"))
	assert.Equal(t, VendorTrust, ParseVendor("trustwallet"))
	assert.Equal(t, VendorCoinbase, ParseVendor("coinbase"))
	assert.Equal(t, VendorUnknown, ParseVendor("rainbow"))
	assert.Equal(t, VendorUnknown, ParseVendor(""))
}
