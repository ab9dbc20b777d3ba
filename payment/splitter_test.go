package payment

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
)

func packedTestCall(t *testing.T) []byte {
	t.Helper()
	call, err := types.BuildSplitCall(testIntent())
	require.NoError(t, err)

	s, err := newSplitter(common.HexToAddress(testSplitter), nil, nil)
	require.NoError(t, err)
	data, err := s.pack(call)
	require.NoError(t, err)
	return data
}

func TestSplitterPackRoundTrip(t *testing.T) {
	data := packedTestCall(t)

	parsed, err := embeddedSplitterABI()
	require.NoError(t, err)
	method, err := parsed.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "splitPayment", method.Name)

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 1)

	var out splitTuple
	require.NoError(t, method.Inputs.Copy(&out, values))
	assert.Equal(t, common.HexToAddress(testToken), out.Token)
	assert.Equal(t, "100000000", out.Amount.String())
	assert.Equal(t, "order-1", out.PaymentId)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), out.Recipient1)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), out.Recipient2)
	assert.Equal(t, common.HexToAddress("0x3333333333333333333333333333333333333333"), out.Recipient3)
	assert.Equal(t, int64(5000), out.Recipient1Percentage.Int64())
	assert.Equal(t, int64(3000), out.Recipient2Percentage.Int64())
	assert.Equal(t, int64(2000), out.Recipient3Percentage.Int64())
}

func TestNewSplitterUsesBackendABI(t *testing.T) {
	s, err := newSplitter(common.HexToAddress(testSplitter), []byte(splitterABIJSON), nil)
	require.NoError(t, err)
	_, ok := s.abi.Methods["splitPayment"]
	assert.True(t, ok)
}

func TestNewSplitterFallsBackOnBadABI(t *testing.T) {
	// malformed metadata must not break the flow
	s, err := newSplitter(common.HexToAddress(testSplitter), []byte(`{"not":"an abi"`), nil)
	require.NoError(t, err)
	_, ok := s.abi.Methods["splitPayment"]
	assert.True(t, ok)

	// a valid ABI without splitPayment is equally useless
	s, err = newSplitter(common.HexToAddress(testSplitter), []byte(`[]`), nil)
	require.NoError(t, err)
	_, ok = s.abi.Methods["splitPayment"]
	assert.True(t, ok)
}

func TestRevertReasonDecoding(t *testing.T) {
	err := &provider.RPCError{
		Code:    3,
		Message: "execution reverted",
		Data:    revertData("split percentages invalid"),
	}
	assert.Equal(t, "split percentages invalid", revertReason(err))

	// errors without return data fall back to the raw message
	plain := errors.New("connection reset")
	assert.Equal(t, "connection reset", revertReason(plain))

	noData := &provider.RPCError{Code: 3, Message: "execution reverted"}
	assert.Equal(t, noData.Error(), revertReason(noData))
}
