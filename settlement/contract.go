package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const contractABI = `[{"inputs":[{"internalType":"address","name":"token","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"fundContract","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Chain is the account-level chain access the settlement contract needs.
type Chain interface {
	Address() common.Address
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Contract is the deployed flash arbitrage receiver. It holds a working
// balance of the borrowed asset to cover the loan premium.
type Contract struct {
	address common.Address
	chain   Chain
	abi     abi.ABI
}

func NewContract(address common.Address, chain Chain) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement ABI: %w", err)
	}
	return &Contract{address: address, chain: chain, abi: parsed}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// Balance returns the contract's balance of token.
func (c *Contract) Balance(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.chain.BalanceOf(ctx, token, c.address)
}

// Fund calls fundContract, which pulls amount of token from the signer. The
// signer must have approved the contract beforehand.
func (c *Contract) Fund(ctx context.Context, token common.Address, amount *big.Int) (*types.Transaction, error) {
	data, err := c.abi.Pack("fundContract", token, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack fundContract: %w", err)
	}
	return c.chain.Submit(ctx, c.address, data)
}
