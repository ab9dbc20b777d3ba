package payment

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `
[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "owner", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "allowance",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "owner", "type": "address" },
      { "name": "spender", "type": "address" }
    ],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "approve",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "spender", "type": "address" },
      { "name": "amount", "type": "uint256" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  }
]
`

var (
	erc20ABIOnce sync.Once
	erc20ABIVal  abi.ABI
	erc20ABIErr  error
)

func erc20ABI() (abi.ABI, error) {
	erc20ABIOnce.Do(func() {
		erc20ABIVal, erc20ABIErr = abi.JSON(strings.NewReader(erc20ABIJSON))
	})
	return erc20ABIVal, erc20ABIErr
}

// erc20 reads and approves a token through the wallet provider.
type erc20 struct {
	token common.Address
	abi   abi.ABI
	c     *chainClient
}

func newERC20(token common.Address, c *chainClient) (*erc20, error) {
	parsed, err := erc20ABI()
	if err != nil {
		return nil, err
	}
	return &erc20{token: token, abi: parsed, c: c}, nil
}

func (e *erc20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := e.abi.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := e.c.call(ctx, owner, e.token, data)
	if err != nil {
		return nil, err
	}
	return e.unpackUint(out, "balanceOf")
}

func (e *erc20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := e.abi.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := e.c.call(ctx, owner, e.token, data)
	if err != nil {
		return nil, err
	}
	return e.unpackUint(out, "allowance")
}

// Approve submits an approval transaction and returns its hash without
// waiting for it to mine.
func (e *erc20) Approve(ctx context.Context, from, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := e.abi.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return e.c.send(ctx, from, e.token, data)
}

func (e *erc20) unpackUint(out []byte, method string) (*big.Int, error) {
	values, err := e.abi.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(values))
	}
	val, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want *big.Int", method, values[0])
	}
	return val, nil
}
