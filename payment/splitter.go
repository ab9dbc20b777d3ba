package payment

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/eyohen/splitpay/provider"
	"github.com/eyohen/splitpay/types"
)

// splitterABIJSON is the canonical splitter interface, used when the
// backend's contract metadata is unreachable.
const splitterABIJSON = `
[
  {
    "name": "splitPayment",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      {
        "name": "params",
        "type": "tuple",
        "components": [
          { "name": "token", "type": "address" },
          { "name": "amount", "type": "uint256" },
          { "name": "paymentId", "type": "string" },
          { "name": "recipient1", "type": "address" },
          { "name": "recipient2", "type": "address" },
          { "name": "recipient3", "type": "address" },
          { "name": "recipient1Percentage", "type": "uint256" },
          { "name": "recipient2Percentage", "type": "uint256" },
          { "name": "recipient3Percentage", "type": "uint256" }
        ]
      }
    ],
    "outputs": []
  }
]
`

var (
	splitterABIOnce sync.Once
	splitterABIVal  abi.ABI
	splitterABIErr  error
)

func embeddedSplitterABI() (abi.ABI, error) {
	splitterABIOnce.Do(func() {
		splitterABIVal, splitterABIErr = abi.JSON(strings.NewReader(splitterABIJSON))
	})
	return splitterABIVal, splitterABIErr
}

// splitTuple mirrors the contract's parameter struct. Field names must
// capitalize the tuple component names exactly for packing to bind.
type splitTuple struct {
	Token                common.Address
	Amount               *big.Int
	PaymentId            string
	Recipient1           common.Address
	Recipient2           common.Address
	Recipient3           common.Address
	Recipient1Percentage *big.Int
	Recipient2Percentage *big.Int
	Recipient3Percentage *big.Int
}

func toSplitTuple(call *types.SplitCall) splitTuple {
	return splitTuple{
		Token:                call.Token,
		Amount:               call.Amount,
		PaymentId:            call.PaymentID,
		Recipient1:           call.Recipient1,
		Recipient2:           call.Recipient2,
		Recipient3:           call.Recipient3,
		Recipient1Percentage: call.Recipient1Percentage,
		Recipient2Percentage: call.Recipient2Percentage,
		Recipient3Percentage: call.Recipient3Percentage,
	}
}

// splitter binds the split contract through the wallet provider.
type splitter struct {
	address common.Address
	abi     abi.ABI
	c       *chainClient
}

// newSplitter parses the backend-supplied ABI when present and usable,
// otherwise binds the embedded interface.
func newSplitter(address common.Address, abiJSON []byte, c *chainClient) (*splitter, error) {
	if len(abiJSON) > 0 {
		parsed, err := abi.JSON(strings.NewReader(string(abiJSON)))
		if err == nil {
			if _, ok := parsed.Methods["splitPayment"]; ok {
				return &splitter{address: address, abi: parsed, c: c}, nil
			}
		}
	}
	parsed, err := embeddedSplitterABI()
	if err != nil {
		return nil, err
	}
	return &splitter{address: address, abi: parsed, c: c}, nil
}

func (s *splitter) pack(call *types.SplitCall) ([]byte, error) {
	return s.abi.Pack("splitPayment", toSplitTuple(call))
}

// Simulate dry-runs splitPayment via eth_call from the sender. A revert
// here means the real transaction would fail; no gas has been spent.
func (s *splitter) Simulate(ctx context.Context, from common.Address, call *types.SplitCall) error {
	data, err := s.pack(call)
	if err != nil {
		return types.NewError(types.ErrParameterValidation, "split call does not match contract interface", err)
	}
	if _, err := s.c.call(ctx, from, s.address, data); err != nil {
		return types.NewError(types.ErrSimulationRevert, revertReason(err), err)
	}
	return nil
}

// Execute submits the split transaction and returns its hash.
func (s *splitter) Execute(ctx context.Context, from common.Address, call *types.SplitCall) (common.Hash, error) {
	data, err := s.pack(call)
	if err != nil {
		return common.Hash{}, types.NewError(types.ErrParameterValidation, "split call does not match contract interface", err)
	}
	hash, err := s.c.send(ctx, from, s.address, data)
	if err != nil {
		if provider.IsUserRejected(err) {
			return common.Hash{}, types.NewError(types.ErrUserRejected, "user rejected payment transaction", err)
		}
		return common.Hash{}, types.NewError(types.ErrExecution, revertReason(err), err)
	}
	return hash, nil
}
